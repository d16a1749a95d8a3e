package application

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
)

func TestAllocateIsMonotonicUnion(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Allocate(ctx, adminActor, contracts.AllocationRequest{
		ProductIDs:      []string{"p1"},
		StoreIDs:        []string{"store-2"},
		IncludeVariants: true,
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Changed)
	require.ElementsMatch(t, []string{"p1", "p1-l"}, res.ProductIDs)

	stores, err := f.repos.Allocations.StoresForProduct(ctx, "p1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"store-1", "store-2"}, stores, "existing allocations stay")
	require.Len(t, f.outboxEvents(t, domain.EventAllocationChanged), 2)

	again, err := f.svc.Allocate(ctx, adminActor, contracts.AllocationRequest{
		ProductIDs: []string{"p1", "p1"},
		StoreIDs:   []string{"store-2"},
	})
	require.NoError(t, err)
	require.Zero(t, again.Changed)
	require.Len(t, f.outboxEvents(t, domain.EventAllocationChanged), 2)

	_, err = f.svc.Allocate(ctx, storeActor, contracts.AllocationRequest{ProductIDs: []string{"p2"}, StoreIDs: []string{"store-1"}})
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.Allocate(ctx, adminActor, contracts.AllocationRequest{ProductIDs: []string{"nope"}, StoreIDs: []string{"store-1"}})
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Allocate(ctx, adminActor, contracts.AllocationRequest{ProductIDs: []string{"p2"}})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSyncProductStoresAppliesDifference(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.SyncProductStores(ctx, adminActor, "p2", contracts.SyncProductStoresRequest{StoreIDs: []string{"store-2"}})
	require.NoError(t, err)
	require.Equal(t, []string{"store-2"}, res.Added)
	require.Equal(t, []string{"store-1"}, res.Removed)

	stores, err := f.repos.Allocations.StoresForProduct(ctx, "p2")
	require.NoError(t, err)
	require.Equal(t, []string{"store-2"}, stores)

	_, err = f.svc.ChangeQuantity(ctx, storeActor, "store-1", domain.QuantityChange{ChangeID: "c-1", ProductID: "p2", Delta: 1})
	require.ErrorIs(t, err, domain.ErrAllocationConflict)

	noop, err := f.svc.SyncProductStores(ctx, adminActor, "p2", contracts.SyncProductStoresRequest{StoreIDs: []string{"store-2"}})
	require.NoError(t, err)
	require.Empty(t, noop.Added)
	require.Empty(t, noop.Removed)
	require.Len(t, f.outboxEvents(t, domain.EventAllocationChanged), 2)
}

func TestDeallocateRemovesOnlyNamedPairs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Deallocate(ctx, adminActor, contracts.AllocationRequest{ProductIDs: []string{"p1", "p2"}, StoreIDs: []string{"store-1"}})
	require.NoError(t, err)
	require.Equal(t, 2, res.Changed)

	products, err := f.repos.Allocations.ProductsForStore(ctx, "store-1")
	require.NoError(t, err)
	require.Equal(t, []string{"p3"}, products)
}

func envelope(t *testing.T, eventType string, data any) contracts.EventEnvelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return contracts.EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		OccurredAt:    time.Date(2026, 10, 18, 11, 0, 0, 0, time.UTC),
		SourceService: "catalog-service",
		SchemaVersion: "1.0",
		Data:          raw,
	}
}

func TestHandleStockReceivedIsDeduplicated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	event := envelope(t, domain.EventCatalogStockReceived, contracts.StockReceivedPayload{ProductID: "p1", StoreID: "store-1", Packs: 5})
	require.NoError(t, f.svc.HandleDomainEvent(ctx, event))
	require.NoError(t, f.svc.HandleDomainEvent(ctx, event))
	require.Equal(t, 15, f.available(t, "p1"))

	level, err := f.repos.Ledger.Get(ctx, "p1", "store-1")
	require.NoError(t, err)
	require.Equal(t, 15, level.TotalPacks)

	movements, err := f.repos.Ledger.ListMovements(ctx, "p1", "store-1", 1)
	require.NoError(t, err)
	require.Equal(t, event.EventID, movements[0].Reference)
}

func TestHandleDomainEventRetriesFailedEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	bad := envelope(t, domain.EventCatalogProductUpserted, contracts.ProductUpsertedPayload{
		ProductID: "p9", Name: "Aprons", Price: "abc", PackQuantity: 10, IsActive: true,
	})
	require.ErrorIs(t, f.svc.HandleDomainEvent(ctx, bad), domain.ErrInvalidInput)

	fixed := envelope(t, domain.EventCatalogProductUpserted, contracts.ProductUpsertedPayload{
		ProductID: "p9", Name: "Aprons", Price: "12.50", PackQuantity: 10, IsActive: true,
	})
	fixed.EventID = bad.EventID
	require.NoError(t, f.svc.HandleDomainEvent(ctx, fixed))

	product, err := f.repos.Catalog.GetProduct(ctx, "p9")
	require.NoError(t, err)
	require.True(t, product.Price.Equal(decimal.RequireFromString("12.50")))

	unknown := envelope(t, "catalog.product_deleted", map[string]string{"product_id": "p9"})
	require.ErrorIs(t, f.svc.HandleDomainEvent(ctx, unknown), domain.ErrUnsupportedEventType)

	empty := envelope(t, domain.EventCatalogStockReceived, nil)
	empty.Data = nil
	require.ErrorIs(t, f.svc.HandleDomainEvent(ctx, empty), domain.ErrInvalidInput)
}

func TestAgencyLimitsUpdateKeepsCounters(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.spend(t, 120, 2)

	event := envelope(t, domain.EventAgencyLimitsUpdated, contracts.AgencyLimitsUpdatedPayload{
		AgencyID:            "agency-1",
		MonthlyExpenseLimit: "100",
		MonthlyOrderLimit:   5,
		BudgetLimitEnabled:  true,
	})
	require.NoError(t, f.svc.HandleDomainEvent(ctx, event))

	agency := f.agency(t)
	require.True(t, agency.MonthlyExpenseLimit.Equal(decimal.NewFromInt(100)))
	require.False(t, agency.OrderLimitEnabled)
	require.True(t, agency.CurrentMonthAmount.Equal(decimal.NewFromInt(120)))
	require.Equal(t, 2, agency.CurrentMonthOrders)

	store := envelope(t, domain.EventAgencyStoreUpserted, contracts.StoreUpsertedPayload{StoreID: "store-3", AgencyID: "agency-1", Name: "Annex"})
	require.NoError(t, f.svc.HandleDomainEvent(ctx, store))
	got, err := f.repos.Catalog.GetStore(ctx, "store-3")
	require.NoError(t, err)
	require.Equal(t, "agency-1", got.AgencyID)
}

func TestRestockRequiresWarehouseRole(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Restock(ctx, storeActor, contracts.RestockRequest{ProductID: "p1", StoreID: "store-1", Packs: 3})
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.Restock(ctx, warehouse, contracts.RestockRequest{ProductID: "p1", StoreID: "store-1", Packs: 0})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	level, err := f.svc.Restock(ctx, warehouse, contracts.RestockRequest{ProductID: "p1-l", StoreID: "store-2", Packs: 3, Reference: "po-77"})
	require.NoError(t, err)
	require.Equal(t, 3, level.AvailablePacks)
}
