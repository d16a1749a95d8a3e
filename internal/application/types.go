package application

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
)

type Config struct {
	ServiceName     string
	IdempotencyTTL  time.Duration
	EventDedupTTL   time.Duration
	CartTTL         time.Duration
	CartChangeTTL   time.Duration
	CartSweepLease  time.Duration
	CartSweepBatch  int
	OrderListLimit  int
	MovementHistory int
}

type CartView struct {
	CartID    string            `json:"cart_id,omitempty"`
	StoreID   string            `json:"store_id"`
	Lines     []domain.CartLine `json:"lines"`
	Total     decimal.Decimal   `json:"total"`
	UpdatedAt *time.Time        `json:"updated_at,omitempty"`
}

type CartChangeResult struct {
	ChangeID       string `json:"change_id"`
	ProductID      string `json:"product_id"`
	StoreID        string `json:"store_id"`
	Quantity       int    `json:"quantity"`
	AvailablePacks int    `json:"available_packs"`
	Replayed       bool   `json:"replayed,omitempty"`
	Reverted       bool   `json:"reverted,omitempty"`
}

// MaxQuantity is the largest line quantity the owner could hold right now.
func (r CartChangeResult) MaxQuantity() int {
	return r.AvailablePacks + r.Quantity
}

type LimitPreview struct {
	StoreID    string                 `json:"store_id"`
	AgencyID   string                 `json:"agency_id"`
	Month      string                 `json:"month"`
	CartTotal  decimal.Decimal        `json:"cart_total"`
	Evaluation domain.LimitEvaluation `json:"evaluation"`
}

type OrderableProduct struct {
	Product        domain.Product `json:"product"`
	AvailablePacks int            `json:"available_packs"`
	InCart         int            `json:"in_cart"`
}

type SubmitOrderResult struct {
	Order            domain.Order           `json:"order"`
	RequiresApproval bool                   `json:"requires_approval"`
	Limits           domain.LimitEvaluation `json:"limits"`
	Replayed         bool                   `json:"replayed,omitempty"`
}

type OrderDetails struct {
	Order   domain.Order               `json:"order"`
	History []domain.OrderStatusChange `json:"history"`
}

type OrderStatusResult struct {
	OrderID string             `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
	OK      bool               `json:"ok"`
	Code    string             `json:"code,omitempty"`
	Message string             `json:"message,omitempty"`
}

type AllocationResult struct {
	ProductIDs []string `json:"product_ids"`
	StoreIDs   []string `json:"store_ids"`
	Changed    int      `json:"changed"`
}

type SyncStoresResult struct {
	ProductID string   `json:"product_id"`
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
}

type ListOrdersQuery struct {
	StoreID string
	Status  string
	Limit   int
	Offset  int
}

// LimitExceededError carries the guard evaluation that blocked an approval.
type LimitExceededError struct {
	Evaluation domain.LimitEvaluation
}

func (e *LimitExceededError) Error() string {
	return domain.ErrLimitExceeded.Error()
}

func (e *LimitExceededError) Unwrap() error {
	return domain.ErrLimitExceeded
}

func LimitEvaluationFrom(err error) (domain.LimitEvaluation, bool) {
	var limitErr *LimitExceededError
	if errors.As(err, &limitErr) {
		return limitErr.Evaluation, true
	}
	return domain.LimitEvaluation{}, false
}
