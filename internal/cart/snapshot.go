// internal/cart/snapshot.go
package cart

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Snapshot is the persisted form of a cart.
type Snapshot struct {
	OwnerID     uuid.UUID       `json:"owner_id"`
	Items       []Item          `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalItems  int             `json:"total_items"`
	CapturedAt  time.Time       `json:"captured_at"`
}

func (c *Cart) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		OwnerID:     c.OwnerID,
		Items:       c.Items(),
		TotalAmount: c.TotalPrice(),
		TotalItems:  c.TotalItems(),
		CapturedAt:  now.UTC(),
	}
}

func encodeSnapshot(s Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// decodeSnapshot rebuilds a cart. Lines are re-keyed and merged so a snapshot
// written by an older key scheme still yields one line per identity.
func decodeSnapshot(owner uuid.UUID, data []byte) (*Cart, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode cart snapshot: %w", err)
	}
	if s.OwnerID != owner {
		return nil, fmt.Errorf("snapshot owner %s does not match %s", s.OwnerID, owner)
	}

	c := New(owner)
	for i, it := range s.Items {
		if it.ProductID == uuid.Nil || it.Quantity < 1 || it.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("snapshot line %d is invalid", i)
		}
		key := LineKey(it.ProductID, it.Options)
		if idx := c.index(key); idx >= 0 {
			c.items[idx].Quantity += it.Quantity
			continue
		}
		it.Key = key
		c.items = append(c.items, it)
	}
	return c, nil
}
