package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type CartLine struct {
	ProductID string          `json:"product_id"`
	StoreID   string          `json:"store_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Holders of a cart lock.
const (
	CartLockSubmit = "submit"
	CartLockExpiry = "expiry"
)

// Cart is one owner's basket for one store. The total is always derived from
// the lines. A locked cart refuses line changes until its holder unlocks or
// deletes it.
type Cart struct {
	CartID    string     `json:"cart_id"`
	OwnerID   string     `json:"owner_id"`
	StoreID   string     `json:"store_id"`
	Lines     []CartLine `json:"lines"`
	Locked    bool       `json:"locked,omitempty"`
	LockedBy  string     `json:"locked_by,omitempty"`
	LockedAt  time.Time  `json:"locked_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Lock marks the cart as held by holder from at.
func (c *Cart) Lock(holder string, at time.Time) error {
	if c.Locked {
		return fmt.Errorf("%w: cart is locked for %s", ErrConflict, c.LockedBy)
	}
	c.Locked = true
	c.LockedBy = holder
	c.LockedAt = at
	return nil
}

func (c *Cart) Unlock() {
	c.Locked = false
	c.LockedBy = ""
	c.LockedAt = time.Time{}
}

func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

func (c Cart) Line(productID string) (CartLine, bool) {
	for _, line := range c.Lines {
		if line.ProductID == productID {
			return line, true
		}
	}
	return CartLine{}, false
}

func (c Cart) IsEmpty() bool {
	for _, line := range c.Lines {
		if line.Quantity > 0 {
			return false
		}
	}
	return true
}

// QuantityChange is a reversible mutation of one cart line.
type QuantityChange struct {
	ChangeID  string `json:"change_id"`
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
}

func (c QuantityChange) Inverse() QuantityChange {
	return QuantityChange{ChangeID: c.ChangeID, ProductID: c.ProductID, Delta: -c.Delta}
}

func (c QuantityChange) Validate() error {
	if strings.TrimSpace(c.ChangeID) == "" {
		return fmt.Errorf("%w: change_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(c.ProductID) == "" {
		return fmt.Errorf("%w: product_id is required", ErrInvalidInput)
	}
	if c.Delta == 0 {
		return fmt.Errorf("%w: delta must be non-zero", ErrInvalidInput)
	}
	return nil
}

// ApplyTo returns the quantity after the change. A negative result is
// rejected.
func (c QuantityChange) ApplyTo(quantity int) (int, error) {
	next := quantity + c.Delta
	if next < 0 {
		return quantity, fmt.Errorf("%w: quantity for %s cannot go below zero", ErrInvalidInput, c.ProductID)
	}
	return next, nil
}
