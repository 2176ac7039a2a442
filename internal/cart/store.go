// internal/cart/store.go
package cart

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrSnapshotNotFound = errors.New("cart snapshot not found")

// SnapshotStore persists serialized carts keyed by owner.
type SnapshotStore interface {
	Load(ctx context.Context, owner uuid.UUID) ([]byte, error)
	Save(ctx context.Context, owner uuid.UUID, data []byte) error
	Delete(ctx context.Context, owner uuid.UUID) error
	Close() error
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[uuid.UUID][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, owner uuid.UUID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[owner]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Save(_ context.Context, owner uuid.UUID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[owner] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, owner uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, owner)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// BadgerStore keeps snapshots in a badger database so carts survive restarts.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadgerStore opens the database in dataDir, or in memory when dataDir is empty.
// A zero ttl keeps snapshots forever.
func NewBadgerStore(dataDir string, ttl time.Duration, logger *logrus.Entry) (*BadgerStore, error) {
	var opts badger.Options
	if dataDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cart data dir: %w", err)
		}
		opts = badger.DefaultOptions(dataDir)
	}
	if logger != nil {
		opts = opts.WithLogger(logger)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cart store: %w", err)
	}
	return &BadgerStore{db: db, ttl: ttl}, nil
}

func snapshotKey(owner uuid.UUID) []byte {
	return []byte("cart:" + owner.String())
}

func (s *BadgerStore) Load(_ context.Context, owner uuid.UUID) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(owner))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSnapshotNotFound
	}
	return data, err
}

func (s *BadgerStore) Save(_ context.Context, owner uuid.UUID, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(snapshotKey(owner), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (s *BadgerStore) Delete(_ context.Context, owner uuid.UUID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(snapshotKey(owner))
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
