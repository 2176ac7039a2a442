// internal/cart/manager.go
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-licensing/internal/apperrors"
)

// Manager loads and saves carts through a SnapshotStore.
type Manager struct {
	store  SnapshotStore
	logger *logrus.Entry
	now    func() time.Time
	locks  sync.Map // owner -> *sync.Mutex
}

func NewManager(store SnapshotStore, logger *logrus.Entry) *Manager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		store:  store,
		logger: logger.WithField("component", "cart"),
		now:    time.Now,
	}
}

// Load returns the owner's cart. A missing snapshot yields an empty cart; a
// corrupt one is logged, dropped and also yields an empty cart.
func (m *Manager) Load(ctx context.Context, owner uuid.UUID) (*Cart, error) {
	data, err := m.store.Load(ctx, owner)
	if errors.Is(err, ErrSnapshotNotFound) {
		return New(owner), nil
	}
	if err != nil {
		return nil, apperrors.Store("load cart", true, err)
	}

	c, err := decodeSnapshot(owner, data)
	if err != nil {
		m.logger.WithError(err).WithField("owner_id", owner).Warn("Discarding corrupt cart snapshot")
		if derr := m.store.Delete(ctx, owner); derr != nil {
			m.logger.WithError(derr).WithField("owner_id", owner).Warn("Failed to delete corrupt cart snapshot")
		}
		return New(owner), nil
	}
	return c, nil
}

func (m *Manager) Save(ctx context.Context, c *Cart) error {
	if c.IsEmpty() {
		if err := m.store.Delete(ctx, c.OwnerID); err != nil {
			return apperrors.Store("delete cart", true, err)
		}
		return nil
	}
	data, err := encodeSnapshot(c.Snapshot(m.now()))
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := m.store.Save(ctx, c.OwnerID, data); err != nil {
		return apperrors.Store("save cart", true, err)
	}
	return nil
}

// Update loads the cart, applies fn and saves the result while holding the
// owner's lock. Nothing is saved when fn fails.
func (m *Manager) Update(ctx context.Context, owner uuid.UUID, fn func(*Cart) error) (*Cart, error) {
	mu := m.lock(owner)
	mu.Lock()
	defer mu.Unlock()

	c, err := m.Load(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := m.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (m *Manager) Discard(ctx context.Context, owner uuid.UUID) error {
	_, err := m.Update(ctx, owner, func(c *Cart) error {
		c.Clear()
		return nil
	})
	return err
}

func (m *Manager) lock(owner uuid.UUID) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(owner, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
