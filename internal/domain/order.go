package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusApprovalPending OrderStatus = "approval_pending"
	OrderStatusConfirmed       OrderStatus = "confirmed"
	OrderStatusOnHold          OrderStatus = "on_hold"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusShipped         OrderStatus = "shipped"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusSedisRejected   OrderStatus = "sedis_rejected"
)

var orderStatuses = []OrderStatus{
	OrderStatusApprovalPending,
	OrderStatusConfirmed,
	OrderStatusOnHold,
	OrderStatusRejected,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusSedisRejected,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusApprovalPending: {OrderStatusConfirmed, OrderStatusRejected, OrderStatusSedisRejected},
	OrderStatusConfirmed:       {OrderStatusOnHold, OrderStatusProcessing, OrderStatusRejected, OrderStatusSedisRejected},
	OrderStatusOnHold:          {OrderStatusConfirmed, OrderStatusRejected, OrderStatusSedisRejected},
	OrderStatusProcessing:      {OrderStatusShipped, OrderStatusRejected, OrderStatusSedisRejected},
	OrderStatusShipped:         {OrderStatusDelivered, OrderStatusRejected, OrderStatusSedisRejected},
	OrderStatusDelivered:       nil,
	OrderStatusRejected:        nil,
	OrderStatusSedisRejected:   nil,
}

func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(orderStatuses))
	copy(out, orderStatuses)
	return out
}

func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := orderTransitions[status]; !ok {
		return "", fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, raw)
	}
	return status, nil
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// HoldsStock reports whether an order in this status has its lines deducted
// from the ledger.
func (s OrderStatus) HoldsStock() bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered:
		return true
	default:
		return false
	}
}

func (s OrderStatus) IsRejection() bool {
	return s == OrderStatusRejected || s == OrderStatusSedisRejected
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type StockEffect int

const (
	StockEffectNone      StockEffect = 0
	StockEffectDecrement StockEffect = -1
	StockEffectIncrement StockEffect = 1
)

// PlanTransition validates from -> to and returns the ledger effect it carries.
// Gaining a hold decrements, losing one releases.
func PlanTransition(from, to OrderStatus) (StockEffect, error) {
	if !CanTransition(from, to) {
		return StockEffectNone, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	switch {
	case !from.HoldsStock() && to.HoldsStock():
		return StockEffectDecrement, nil
	case from.HoldsStock() && !to.HoldsStock():
		return StockEffectIncrement, nil
	default:
		return StockEffectNone, nil
	}
}

type OrderLine struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	PackQuantity int             `json:"pack_quantity"`
	Quantity     int             `json:"quantity"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// Order lines and totals are a snapshot taken at submission and never change.
type Order struct {
	OrderID      string          `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	StoreID      string          `json:"store_id"`
	AgencyID     string          `json:"agency_id"`
	PlacedBy     string          `json:"placed_by"`
	SourceCartID string          `json:"source_cart_id"`
	Lines        []OrderLine     `json:"lines"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Status       OrderStatus     `json:"status"`
	CountedMonth string          `json:"counted_month,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type OrderStatusChange struct {
	OrderID    string      `json:"order_id"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status"`
	ChangedBy  string      `json:"changed_by"`
	Override   bool        `json:"override,omitempty"`
	ChangedAt  time.Time   `json:"changed_at"`
}

// BuildOrderLines snapshots cart lines against the catalog. Every line must
// reference a known product.
func BuildOrderLines(lines []CartLine, products map[string]Product) ([]OrderLine, decimal.Decimal, error) {
	out := make([]OrderLine, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		product, ok := products[line.ProductID]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("%w: product %s", ErrNotFound, line.ProductID)
		}
		lineTotal := line.LineTotal()
		out = append(out, OrderLine{
			ProductID:    line.ProductID,
			ProductName:  product.Name,
			UnitPrice:    line.UnitPrice,
			PackQuantity: product.PackQuantity,
			Quantity:     line.Quantity,
			LineTotal:    lineTotal,
		})
		total = total.Add(lineTotal)
	}
	if len(out) == 0 {
		return nil, decimal.Zero, fmt.Errorf("%w: cart is empty", ErrInvalidInput)
	}
	return out, total, nil
}

func OrderNumber(createdAt time.Time, orderID string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(orderID, "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("ORD-%s-%s", createdAt.UTC().Format("20060102"), suffix)
}
