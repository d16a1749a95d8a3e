package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

var (
	storeActor    = ports.AuthClaims{UserID: "user-store", Role: ports.RoleStore, AgencyID: "agency-1", Valid: true}
	approverActor = ports.AuthClaims{UserID: "user-approver", Role: ports.RoleApprover, AgencyID: "agency-1", Valid: true}
	warehouse     = ports.AuthClaims{UserID: "user-warehouse", Role: ports.RoleWarehouse, Valid: true}
	adminActor    = ports.AuthClaims{UserID: "user-admin", Role: ports.RoleAdmin, Valid: true}
)

type fixture struct {
	svc   *Service
	db    *memory.Store
	repos memory.Repositories
	carts *memory.CartStore
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.NewStore()
	repos := db.Repositories()
	carts := memory.NewCartStore()
	svc := NewService(Dependencies{
		Catalog:     repos.Catalog,
		Agencies:    repos.Agencies,
		Ledger:      repos.Ledger,
		Allocations: repos.Allocations,
		Orders:      repos.Orders,
		Outbox:      repos.Outbox,
		EventDedup:  repos.EventDedup,
		Idempotency: repos.Idempotency,
		UnitOfWork:  db,
		Carts:       carts,
		Changes:     memory.NewCartChangeLog(),
	})
	f := &fixture{svc: svc, db: db, repos: repos, carts: carts, now: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
	svc.nowFn = func() time.Time { return f.now }

	ctx := context.Background()
	mustNoErr(t, repos.Agencies.UpsertLimits(ctx, domain.Agency{
		AgencyID:            "agency-1",
		MonthlyExpenseLimit: decimal.NewFromInt(500),
		MonthlyOrderLimit:   10,
		BudgetLimitEnabled:  true,
		OrderLimitEnabled:   true,
	}))
	mustNoErr(t, repos.Agencies.UpsertLimits(ctx, domain.Agency{AgencyID: "agency-2"}))
	mustNoErr(t, repos.Catalog.UpsertStore(ctx, domain.Store{StoreID: "store-1", AgencyID: "agency-1", Name: "Main"}))
	mustNoErr(t, repos.Catalog.UpsertStore(ctx, domain.Store{StoreID: "store-2", AgencyID: "agency-2", Name: "Other"}))
	for _, p := range []domain.Product{
		{ProductID: "p1", Name: "Gloves", Price: decimal.NewFromInt(10), PackQuantity: 12, IsActive: true, VariantIDs: []string{"p1-l"}},
		{ProductID: "p1-l", Name: "Gloves L", Price: decimal.NewFromInt(10), PackQuantity: 12, IsActive: true},
		{ProductID: "p2", Name: "Masks", Price: decimal.NewFromInt(5), PackQuantity: 50, IsActive: true},
		{ProductID: "p3", Name: "Retired", Price: decimal.NewFromInt(1), PackQuantity: 1, IsActive: false},
	} {
		mustNoErr(t, repos.Catalog.UpsertProduct(ctx, p))
	}
	_, err := repos.Allocations.Add(ctx, []domain.Allocation{
		{ProductID: "p1", StoreID: "store-1"},
		{ProductID: "p2", StoreID: "store-1"},
		{ProductID: "p3", StoreID: "store-1"},
	}, f.now)
	mustNoErr(t, err)
	for _, id := range []string{"p1", "p2", "p3"} {
		_, err := repos.Ledger.Restock(ctx, domain.StockAdjustment{ProductID: id, StoreID: "store-1", Delta: 10, Reason: domain.MovementRestock})
		mustNoErr(t, err)
	}
	return f
}

func (f *fixture) available(t *testing.T, productID string) int {
	t.Helper()
	level, err := f.repos.Ledger.Get(context.Background(), productID, "store-1")
	mustNoErr(t, err)
	return level.AvailablePacks
}

func (f *fixture) agency(t *testing.T) domain.Agency {
	t.Helper()
	agency, err := f.repos.Agencies.Get(context.Background(), "agency-1")
	mustNoErr(t, err)
	return agency
}

func (f *fixture) add(t *testing.T, productID string, qty int) CartChangeResult {
	t.Helper()
	res, err := f.svc.ChangeQuantity(context.Background(), storeActor, "store-1", domain.QuantityChange{
		ProductID: productID, Delta: qty,
	})
	mustNoErr(t, err)
	return res
}

// seedOrder writes an order straight into the repository in the given status.
func (f *fixture) seedOrder(t *testing.T, orderID string, status domain.OrderStatus, lines ...domain.OrderLine) domain.Order {
	t.Helper()
	total := decimal.Zero
	for i := range lines {
		lines[i].LineTotal = lines[i].UnitPrice.Mul(decimal.NewFromInt(int64(lines[i].Quantity)))
		total = total.Add(lines[i].LineTotal)
	}
	order := domain.Order{
		OrderID:      orderID,
		OrderNumber:  domain.OrderNumber(f.now, orderID),
		StoreID:      "store-1",
		AgencyID:     "agency-1",
		SourceCartID: "cart-" + orderID,
		Lines:        lines,
		TotalAmount:  total,
		Status:       status,
		CreatedAt:    f.now,
		UpdatedAt:    f.now,
	}
	mustNoErr(t, f.repos.Orders.Create(context.Background(), order))
	return order
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
