package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
)

type CartRef struct {
	OwnerID string
	StoreID string
}

type ApplyCartChangeParams struct {
	OwnerID   string
	StoreID   string
	ProductID string
	Delta     int
	UnitPrice decimal.Decimal
	At        time.Time
}

// CartStore keeps server-side carts. ApplyChange is atomic per cart and
// rejects a line that would go negative or a cart that is locked for
// submission.
type CartStore interface {
	Get(ctx context.Context, ownerID, storeID string) (domain.Cart, error)
	ApplyChange(ctx context.Context, params ApplyCartChangeParams) (domain.CartLine, error)
	// Lock freezes the cart for holder and counts as activity at at, so an
	// idle sweep does not pick up a cart that is being submitted.
	Lock(ctx context.Context, ownerID, storeID, holder string, at time.Time) (domain.Cart, error)
	Unlock(ctx context.Context, ownerID, storeID string) error
	Delete(ctx context.Context, ownerID, storeID string) error
	// ClaimIdle returns carts untouched since cutoff and leases them until
	// leaseUntil so concurrent sweepers do not pick the same cart.
	ClaimIdle(ctx context.Context, cutoff, leaseUntil time.Time, limit int) ([]CartRef, error)
}

type CartChangeState string

const (
	CartChangePending   CartChangeState = "pending"
	CartChangeApplied   CartChangeState = "applied"
	CartChangeReverting CartChangeState = "reverting"
	CartChangeReverted  CartChangeState = "reverted"
)

type CartChangeRecord struct {
	ChangeID  string
	OwnerID   string
	StoreID   string
	ProductID string
	Delta     int
	State     CartChangeState
	UpdatedAt time.Time
}

type CartChangeLog interface {
	// Begin records rec as pending. When the change id is already known the
	// existing record is returned and nothing is written.
	Begin(ctx context.Context, rec CartChangeRecord, ttl time.Duration) (*CartChangeRecord, error)
	// BeginRevert moves an applied change to reverting and returns it. An
	// unknown change id is recorded as a reverted tombstone.
	BeginRevert(ctx context.Context, changeID, ownerID string, ttl time.Duration) (CartChangeRecord, error)
	Transition(ctx context.Context, changeID string, from, to CartChangeState) error
	Discard(ctx context.Context, changeID string) error
}
