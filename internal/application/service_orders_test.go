package application

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

func (f *fixture) outboxEvents(t *testing.T, eventType string) []contracts.EventEnvelope {
	t.Helper()
	records, err := f.repos.Outbox.FetchUnpublished(context.Background(), 0)
	require.NoError(t, err)
	out := make([]contracts.EventEnvelope, 0)
	for _, rec := range records {
		if rec.EventType != eventType {
			continue
		}
		var envelope contracts.EventEnvelope
		require.NoError(t, json.Unmarshal(rec.Payload, &envelope))
		out = append(out, envelope)
	}
	return out
}

func (f *fixture) spend(t *testing.T, amount int64, orders int) {
	t.Helper()
	agency := f.agency(t)
	require.NoError(t, f.repos.Agencies.SaveCounters(context.Background(),
		agency.AddToMonth(domain.MonthKey(f.now), decimal.NewFromInt(amount), orders)))
}

func TestSubmitOrderWithinLimitsConfirms(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "p1", 3)
	f.add(t, "p2", 2)

	res, err := f.svc.SubmitOrder(ctx, storeActor, "store-1", "key-1")
	require.NoError(t, err)
	require.False(t, res.RequiresApproval)
	require.Equal(t, domain.OrderStatusConfirmed, res.Order.Status)
	require.True(t, res.Order.TotalAmount.Equal(decimal.NewFromInt(40)))
	require.Equal(t, "2026-10", res.Order.CountedMonth)
	require.Len(t, res.Order.Lines, 2)

	// The cart reservation becomes the order's hold without a second decrement.
	require.Equal(t, 7, f.available(t, "p1"))
	require.Equal(t, 8, f.available(t, "p2"))

	agency := f.agency(t)
	require.True(t, agency.CurrentMonthAmount.Equal(decimal.NewFromInt(40)))
	require.Equal(t, 1, agency.CurrentMonthOrders)

	cart, err := f.svc.GetCart(ctx, storeActor, "store-1")
	require.NoError(t, err)
	require.Empty(t, cart.Lines)

	submitted := f.outboxEvents(t, domain.EventOrderSubmitted)
	require.Len(t, submitted, 1)
	require.Equal(t, res.Order.OrderID, submitted[0].PartitionKey)

	replay, err := f.svc.SubmitOrder(ctx, storeActor, "store-1", "key-1")
	require.NoError(t, err)
	require.True(t, replay.Replayed)
	require.Equal(t, res.Order.OrderID, replay.Order.OrderID)
	require.Len(t, f.outboxEvents(t, domain.EventOrderSubmitted), 1)
}

func TestSubmitOrderRequiresKeyAndLines(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitOrder(ctx, storeActor, "store-1", " ")
	require.ErrorIs(t, err, domain.ErrIdempotencyRequired)

	_, err = f.svc.SubmitOrder(ctx, storeActor, "store-1", "key-empty")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	// A failed submission releases its key so the retry is evaluated afresh.
	f.add(t, "p2", 1)
	res, err := f.svc.SubmitOrder(ctx, storeActor, "store-1", "key-empty")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, res.Order.Status)

	other := storeActor
	other.UserID = "user-other"
	_, err = f.svc.SubmitOrder(ctx, other, "store-1", "key-empty")
	require.ErrorIs(t, err, domain.ErrIdempotencyConflict)
}

func TestSubmitOrderRefusesDeallocatedLine(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "p1", 2)

	_, err := f.svc.Deallocate(ctx, adminActor, contracts.AllocationRequest{ProductIDs: []string{"p1"}, StoreIDs: []string{"store-1"}})
	require.NoError(t, err)

	_, err = f.svc.SubmitOrder(ctx, storeActor, "store-1", "key-1")
	require.ErrorIs(t, err, domain.ErrAllocationConflict)

	// The cart is unlocked again and still holds its reservation.
	cart, err := f.svc.GetCart(ctx, storeActor, "store-1")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	require.Equal(t, 8, f.available(t, "p1"))
	f.add(t, "p1", -2)
	require.Equal(t, 10, f.available(t, "p1"))
}

func TestSubmitOverBudgetWaitsForApproval(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.spend(t, 450, 1)
	f.add(t, "p1", 10)

	res, err := f.svc.SubmitOrder(ctx, storeActor, "store-1", "key-1")
	require.NoError(t, err)
	require.True(t, res.RequiresApproval)
	require.Equal(t, domain.OrderStatusApprovalPending, res.Order.Status)
	require.True(t, res.Limits.ExceedsBudget)
	require.True(t, res.Limits.ExceedAmount.Equal(decimal.NewFromInt(50)))
	require.Empty(t, res.Order.CountedMonth)
	require.Equal(t, 10, f.available(t, "p1"), "pending orders hold no stock")
	require.Equal(t, 1, f.agency(t).CurrentMonthOrders)

	_, err = f.svc.ApproveOrder(ctx, storeActor, res.Order.OrderID, contracts.ApproveOrderRequest{})
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.ApproveOrder(ctx, approverActor, res.Order.OrderID, contracts.ApproveOrderRequest{})
	require.ErrorIs(t, err, domain.ErrLimitExceeded)
	evaluation, ok := LimitEvaluationFrom(err)
	require.True(t, ok)
	require.True(t, evaluation.ExceedAmount.Equal(decimal.NewFromInt(50)))
	require.Equal(t, 10, f.available(t, "p1"))

	approved, err := f.svc.ApproveOrder(ctx, approverActor, res.Order.OrderID, contracts.ApproveOrderRequest{OverrideLimit: true})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, approved.Status)
	require.Equal(t, 0, f.available(t, "p1"))

	agency := f.agency(t)
	require.True(t, agency.CurrentMonthAmount.Equal(decimal.NewFromInt(550)))
	require.Equal(t, 2, agency.CurrentMonthOrders)

	details, err := f.svc.GetOrder(ctx, storeActor, res.Order.OrderID)
	require.NoError(t, err)
	require.Len(t, details.History, 2)
	require.True(t, details.History[1].Override)

	_, err = f.svc.ApproveOrder(ctx, approverActor, res.Order.OrderID, contracts.ApproveOrderRequest{OverrideLimit: true})
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
	require.Equal(t, 0, f.available(t, "p1"))
}

func TestApproveWithinLimitsNeedsNoOverride(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.seedOrder(t, "o-1", domain.OrderStatusApprovalPending,
		domain.OrderLine{ProductID: "p1", UnitPrice: decimal.NewFromInt(10), Quantity: 4})

	approved, err := f.svc.ApproveOrder(context.Background(), approverActor, order.OrderID, contracts.ApproveOrderRequest{})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, approved.Status)
	require.Equal(t, "2026-10", approved.CountedMonth)
	require.Equal(t, 6, f.available(t, "p1"))
}

func TestRepeatedConfirmDecrementsOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, "o-1", domain.OrderStatusApprovalPending,
		domain.OrderLine{ProductID: "p1", UnitPrice: decimal.NewFromInt(10), Quantity: 3})

	req := contracts.ChangeOrderStatusRequest{OrderIDs: []string{order.OrderID}, Status: "confirmed"}
	first, err := f.svc.ChangeOrderStatus(ctx, approverActor, req)
	require.NoError(t, err)
	require.True(t, first[0].OK)

	second, err := f.svc.ChangeOrderStatus(ctx, approverActor, req)
	require.NoError(t, err)
	require.False(t, second[0].OK)
	require.Equal(t, "illegal_transition", second[0].Code)
	require.Equal(t, domain.OrderStatusConfirmed, second[0].Status)
	require.Equal(t, 7, f.available(t, "p1"))
}

func TestHoldAndReconfirmIsStockNeutral(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, "o-1", domain.OrderStatusConfirmed,
		domain.OrderLine{ProductID: "p2", UnitPrice: decimal.NewFromInt(5), Quantity: 4})

	hold, err := f.svc.ChangeOrderStatus(ctx, warehouse, contracts.ChangeOrderStatusRequest{OrderIDs: []string{order.OrderID}, Status: "on_hold"})
	require.NoError(t, err)
	require.True(t, hold[0].OK)
	require.Equal(t, 14, f.available(t, "p2"))

	back, err := f.svc.ChangeOrderStatus(ctx, warehouse, contracts.ChangeOrderStatusRequest{OrderIDs: []string{order.OrderID}, Status: "CONFIRMED"})
	require.NoError(t, err)
	require.True(t, back[0].OK)
	require.Equal(t, 10, f.available(t, "p2"))

	movements, err := f.svc.GetStockMovements(ctx, warehouse, "p2", "store-1")
	require.NoError(t, err)
	require.Equal(t, domain.MovementOrderCommit, movements[0].Reason)
	require.Equal(t, domain.MovementOrderRelease, movements[1].Reason)
}

func TestBatchStatusChangeIsolatesFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.seedOrder(t, "o-a", domain.OrderStatusApprovalPending,
		domain.OrderLine{ProductID: "p1", UnitPrice: decimal.NewFromInt(10), Quantity: 2})
	b := f.seedOrder(t, "o-b", domain.OrderStatusApprovalPending,
		domain.OrderLine{ProductID: "p2", UnitPrice: decimal.NewFromInt(5), Quantity: 50})
	c := f.seedOrder(t, "o-c", domain.OrderStatusApprovalPending,
		domain.OrderLine{ProductID: "p1", UnitPrice: decimal.NewFromInt(10), Quantity: 1})

	results, err := f.svc.ChangeOrderStatus(context.Background(), approverActor, contracts.ChangeOrderStatusRequest{
		OrderIDs: []string{a.OrderID, b.OrderID, c.OrderID, "missing"},
		Status:   "confirmed",
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	require.True(t, results[0].OK)
	require.False(t, results[1].OK)
	require.Equal(t, "insufficient_stock", results[1].Code)
	require.Equal(t, domain.OrderStatusApprovalPending, results[1].Status)
	require.True(t, results[2].OK)
	require.Equal(t, "not_found", results[3].Code)

	require.Equal(t, 7, f.available(t, "p1"))
	require.Equal(t, 10, f.available(t, "p2"))
	require.Equal(t, 2, f.agency(t).CurrentMonthOrders, "the failed order must not be counted")

	stored, err := f.repos.Orders.Get(context.Background(), b.OrderID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusApprovalPending, stored.Status)
	require.Len(t, f.outboxEvents(t, domain.EventOrderStatusChanged), 2)
}

func TestRejectReversesCountersAndReleasesStock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "p1", 5)
	res, err := f.svc.SubmitOrder(ctx, storeActor, "store-1", "key-1")
	require.NoError(t, err)
	require.Equal(t, 5, f.available(t, "p1"))

	results, err := f.svc.ChangeOrderStatus(ctx, approverActor, contracts.ChangeOrderStatusRequest{
		OrderIDs: []string{res.Order.OrderID},
		Status:   "rejected",
	})
	require.NoError(t, err)
	require.True(t, results[0].OK)
	require.Equal(t, 10, f.available(t, "p1"))

	agency := f.agency(t)
	require.True(t, agency.CurrentMonthAmount.IsZero())
	require.Equal(t, 0, agency.CurrentMonthOrders)

	stored, err := f.repos.Orders.Get(ctx, res.Order.OrderID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusRejected, stored.Status)
	require.Empty(t, stored.CountedMonth)
}

func TestRejectPendingOrderLeavesCounters(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.spend(t, 100, 3)
	order := f.seedOrder(t, "o-1", domain.OrderStatusApprovalPending,
		domain.OrderLine{ProductID: "p1", UnitPrice: decimal.NewFromInt(10), Quantity: 1})

	results, err := f.svc.ChangeOrderStatus(context.Background(), approverActor, contracts.ChangeOrderStatusRequest{
		OrderIDs: []string{order.OrderID},
		Status:   "sedis_rejected",
	})
	require.NoError(t, err)
	require.True(t, results[0].OK)
	require.Equal(t, 3, f.agency(t).CurrentMonthOrders)
	require.Equal(t, 10, f.available(t, "p1"))
}

func TestOrderAccessIsAgencyScoped(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, "o-1", domain.OrderStatusApprovalPending,
		domain.OrderLine{ProductID: "p1", UnitPrice: decimal.NewFromInt(10), Quantity: 1})

	outsider := ports.AuthClaims{UserID: "user-x", Role: ports.RoleApprover, AgencyID: "agency-2", Valid: true}
	_, err := f.svc.GetOrder(ctx, outsider, order.OrderID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	results, err := f.svc.ChangeOrderStatus(ctx, outsider, contracts.ChangeOrderStatusRequest{OrderIDs: []string{order.OrderID}, Status: "confirmed"})
	require.NoError(t, err)
	require.Equal(t, "forbidden", results[0].Code)

	listed, err := f.svc.ListOrders(ctx, outsider, ListOrdersQuery{})
	require.NoError(t, err)
	require.Empty(t, listed)

	listed, err = f.svc.ListOrders(ctx, adminActor, ListOrdersQuery{Status: "approval_pending"})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = f.svc.ChangeOrderStatus(ctx, storeActor, contracts.ChangeOrderStatusRequest{OrderIDs: []string{order.OrderID}, Status: "confirmed"})
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.ChangeOrderStatus(ctx, adminActor, contracts.ChangeOrderStatusRequest{OrderIDs: []string{order.OrderID}, Status: "lost"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
