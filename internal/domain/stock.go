package domain

import (
	"fmt"
	"strings"
	"time"
)

type MovementReason string

const (
	MovementCartReserve  MovementReason = "cart_reserve"
	MovementCartRelease  MovementReason = "cart_release"
	MovementCartExpired  MovementReason = "cart_expired"
	MovementOrderCommit  MovementReason = "order_commit"
	MovementOrderRelease MovementReason = "order_release"
	MovementRestock      MovementReason = "restock"
)

// StockLevel is the per-store counter pair for one product. AvailablePacks is
// what can still be reserved; it never goes below zero.
type StockLevel struct {
	ProductID      string    `json:"product_id"`
	StoreID        string    `json:"store_id"`
	TotalPacks     int       `json:"total_packs"`
	AvailablePacks int       `json:"available_packs"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type StockMovement struct {
	MovementID     string         `json:"movement_id"`
	ProductID      string         `json:"product_id"`
	StoreID        string         `json:"store_id"`
	Delta          int            `json:"delta"`
	AvailableAfter int            `json:"available_after"`
	Reason         MovementReason `json:"reason"`
	Reference      string         `json:"reference,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type StockAdjustment struct {
	ProductID string
	StoreID   string
	Delta     int
	Reason    MovementReason
	Reference string
}

func ValidateAdjustment(adj StockAdjustment) error {
	if strings.TrimSpace(adj.ProductID) == "" || strings.TrimSpace(adj.StoreID) == "" {
		return fmt.Errorf("%w: product_id and store_id are required", ErrInvalidInput)
	}
	if adj.Delta == 0 {
		return fmt.Errorf("%w: stock delta must be non-zero", ErrInvalidInput)
	}
	if adj.Reason == "" {
		return fmt.Errorf("%w: movement reason is required", ErrInvalidInput)
	}
	return nil
}

// ApplyDelta returns the level after delta, or ErrInsufficientStock when the
// decrement is larger than what is available. It never clamps.
func (l StockLevel) ApplyDelta(delta int) (StockLevel, error) {
	next := l.AvailablePacks + delta
	if next < 0 {
		return l, fmt.Errorf("%w: product %s at store %s has %d packs, requested %d",
			ErrInsufficientStock, l.ProductID, l.StoreID, l.AvailablePacks, -delta)
	}
	l.AvailablePacks = next
	return l, nil
}
