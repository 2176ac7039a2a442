// internal/cart/cart.go
package cart

import (
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/javajoker/imi-licensing/internal/apperrors"
	"github.com/javajoker/imi-licensing/internal/models"
)

// Item is one line of a cart. Its identity is Key.
type Item struct {
	Key       string            `json:"key"`
	ProductID uuid.UUID         `json:"product_id"`
	Title     string            `json:"title"`
	SellerID  uuid.UUID         `json:"seller_id"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Quantity  int               `json:"quantity"`
	Options   map[string]string `json:"options,omitempty"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart holds the line items of a single buyer. It is not safe for concurrent use;
// Manager.Update serializes mutations per owner.
type Cart struct {
	OwnerID uuid.UUID
	items   []Item
}

func New(ownerID uuid.UUID) *Cart {
	return &Cart{OwnerID: ownerID}
}

// CanonicalKey renders an option map independent of key order: keys sorted,
// escaped key=value pairs joined with '&'.
func CanonicalKey(options map[string]string) string {
	if len(options) == 0 {
		return ""
	}
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(options[k]))
	}
	return b.String()
}

// LineKey is the identity of a line: product id plus canonical options.
func LineKey(productID uuid.UUID, options map[string]string) string {
	key := productID.String()
	if opts := CanonicalKey(options); opts != "" {
		key += "?" + opts
	}
	return key
}

// AddItem merges into the matching line or appends a new one.
func (c *Cart) AddItem(product models.Product, quantity int, options map[string]string) (Item, error) {
	if quantity < 1 {
		return Item{}, apperrors.Validation("quantity must be at least 1, got %d", quantity)
	}
	if product.ID == uuid.Nil {
		return Item{}, apperrors.Validation("product id is required")
	}

	key := LineKey(product.ID, options)
	if idx := c.index(key); idx >= 0 {
		c.items[idx].Quantity += quantity
		return c.items[idx], nil
	}

	item := Item{
		Key:       key,
		ProductID: product.ID,
		Title:     product.Title,
		SellerID:  product.CreatorID,
		UnitPrice: product.Price,
		Quantity:  quantity,
	}
	if len(options) > 0 {
		item.Options = make(map[string]string, len(options))
		for k, v := range options {
			item.Options[k] = v
		}
	}
	c.items = append(c.items, item)
	return item, nil
}

func (c *Cart) RemoveItem(key string) error {
	idx := c.index(key)
	if idx < 0 {
		return apperrors.NotFound("cart item", key)
	}
	c.items = slices.Delete(c.items, idx, idx+1)
	return nil
}

// UpdateQuantity sets the quantity of a line; zero or less removes it.
func (c *Cart) UpdateQuantity(key string, quantity int) error {
	idx := c.index(key)
	if idx < 0 {
		return apperrors.NotFound("cart item", key)
	}
	if quantity <= 0 {
		c.items = slices.Delete(c.items, idx, idx+1)
		return nil
	}
	c.items[idx].Quantity = quantity
	return nil
}

func (c *Cart) Clear() {
	c.items = nil
}

func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

func (c *Cart) TotalItems() int {
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []Item {
	return slices.Clone(c.items)
}

func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

func (c *Cart) index(key string) int {
	return slices.IndexFunc(c.items, func(it Item) bool { return it.Key == key })
}
