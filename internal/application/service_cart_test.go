package application

import (
	"context"
	"errors"
	"testing"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
)

func TestAddToCartReservesStock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.AddToCart(ctx, storeActor, "store-1", contracts.AddToCartRequest{ProductID: "p1", Quantity: 4, ChangeID: "c-1"})
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	if res.Quantity != 4 || res.AvailablePacks != 6 || res.MaxQuantity() != 10 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := f.available(t, "p1"); got != 6 {
		t.Fatalf("expected 6 available, got %d", got)
	}

	replay, err := f.svc.AddToCart(ctx, storeActor, "store-1", contracts.AddToCartRequest{ProductID: "p1", Quantity: 4, ChangeID: "c-1"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Replayed || replay.Quantity != 4 {
		t.Fatalf("expected replayed line with quantity 4, got %+v", replay)
	}
	if got := f.available(t, "p1"); got != 6 {
		t.Fatalf("replay must not reserve again, available %d", got)
	}

	cart, err := f.svc.GetCart(ctx, storeActor, "store-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Total.IntPart() != 40 {
		t.Fatalf("unexpected cart %+v", cart)
	}
}

func TestChangeQuantityRejectsWithoutSideEffects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ChangeQuantity(ctx, storeActor, "store-1", domain.QuantityChange{ChangeID: "c-1", ProductID: "p1", Delta: 11})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	_, err = f.svc.ChangeQuantity(ctx, storeActor, "store-1", domain.QuantityChange{ChangeID: "c-2", ProductID: "p3", Delta: 1})
	if !errors.Is(err, domain.ErrAllocationConflict) {
		t.Fatalf("expected allocation conflict for inactive product, got %v", err)
	}
	_, err = f.svc.ChangeQuantity(ctx, storeActor, "store-1", domain.QuantityChange{ChangeID: "c-3", ProductID: "p1-l", Delta: 1})
	if !errors.Is(err, domain.ErrAllocationConflict) {
		t.Fatalf("expected allocation conflict for unallocated product, got %v", err)
	}
	_, err = f.svc.ChangeQuantity(ctx, storeActor, "store-1", domain.QuantityChange{ChangeID: "c-4", ProductID: "p2", Delta: -1})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative line, got %v", err)
	}
	if got := f.available(t, "p1"); got != 10 {
		t.Fatalf("failed changes must not move stock, available %d", got)
	}
	if got := f.available(t, "p2"); got != 10 {
		t.Fatalf("failed release must be compensated, available %d", got)
	}

	// A failed change id can be reused once the cause is fixed.
	if _, err := f.svc.ChangeQuantity(ctx, storeActor, "store-1", domain.QuantityChange{ChangeID: "c-1", ProductID: "p1", Delta: 11}); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock again, got %v", err)
	}
}

func TestChangeQuantityEnforcesAgencyScope(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.ChangeQuantity(context.Background(), storeActor, "store-2", domain.QuantityChange{ChangeID: "c-1", ProductID: "p1", Delta: 1})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	_, err = f.svc.ChangeQuantity(context.Background(), warehouse, "store-1", domain.QuantityChange{ChangeID: "c-2", ProductID: "p1", Delta: 1})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for warehouse role, got %v", err)
	}
}

func TestDecreasingToZeroRemovesLineAndReleases(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.add(t, "p1", 3)
	f.add(t, "p2", 2)
	f.add(t, "p1", -3)

	cart, err := f.svc.GetCart(context.Background(), storeActor, "store-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].ProductID != "p2" {
		t.Fatalf("expected only p2 left, got %+v", cart.Lines)
	}
	if got := f.available(t, "p1"); got != 10 {
		t.Fatalf("expected p1 fully released, got %d", got)
	}
}

func TestRevertChangeIsDeltaExact(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, "p1", 2)
	if _, err := f.svc.ChangeQuantity(ctx, storeActor, "store-1", domain.QuantityChange{ChangeID: "c-target", ProductID: "p1", Delta: 3}); err != nil {
		t.Fatalf("change: %v", err)
	}
	f.add(t, "p1", 1)

	res, err := f.svc.RevertChange(ctx, storeActor, "c-target")
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if !res.Reverted || res.Quantity != 3 {
		t.Fatalf("expected quantity 3 after revert, got %+v", res)
	}
	if got := f.available(t, "p1"); got != 7 {
		t.Fatalf("expected 7 available, got %d", got)
	}

	again, err := f.svc.RevertChange(ctx, storeActor, "c-target")
	if err != nil {
		t.Fatalf("second revert: %v", err)
	}
	if again.Quantity != 3 || f.available(t, "p1") != 7 {
		t.Fatalf("second revert must be a no-op, got %+v", again)
	}

	_, err = f.svc.ChangeQuantity(ctx, storeActor, "store-1", domain.QuantityChange{ChangeID: "c-target", ProductID: "p1", Delta: 3})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict when replaying a reverted change, got %v", err)
	}
}

func TestRevertBeforeOriginalLeavesTombstone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.RevertChange(ctx, storeActor, "c-late")
	if err != nil {
		t.Fatalf("revert unknown change: %v", err)
	}
	if !res.Reverted {
		t.Fatalf("expected reverted result, got %+v", res)
	}
	_, err = f.svc.ChangeQuantity(ctx, storeActor, "store-1", domain.QuantityChange{ChangeID: "c-late", ProductID: "p1", Delta: 2})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected late original to be refused, got %v", err)
	}
	if got := f.available(t, "p1"); got != 10 {
		t.Fatalf("refused original must not reserve, available %d", got)
	}
}

func TestRevertRefusedWhenLineShrank(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.ChangeQuantity(ctx, storeActor, "store-1", domain.QuantityChange{ChangeID: "c-add", ProductID: "p1", Delta: 5}); err != nil {
		t.Fatalf("change: %v", err)
	}
	f.add(t, "p1", -4)

	_, err := f.svc.RevertChange(ctx, storeActor, "c-add")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got := f.available(t, "p1"); got != 9 {
		t.Fatalf("expected 9 available, got %d", got)
	}
	other := storeActor
	other.UserID = "someone-else"
	if _, err := f.svc.RevertChange(ctx, other, "c-add"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for another owner, got %v", err)
	}
}

func TestPreviewLimits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.add(t, "p1", 10)
	f.add(t, "p2", 10)

	preview, err := f.svc.PreviewLimits(context.Background(), storeActor, "store-1")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.CartTotal.IntPart() != 150 || preview.Month != "2026-10" {
		t.Fatalf("unexpected preview %+v", preview)
	}
	if preview.Evaluation.ExceedsBudget || !preview.Evaluation.BudgetEvaluated {
		t.Fatalf("150 of 500 must pass, got %+v", preview.Evaluation)
	}
}

func TestSweepExpiredCartsReleasesReservations(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.add(t, "p1", 4)
	f.add(t, "p2", 1)

	swept, err := f.svc.SweepExpiredCarts(context.Background())
	if err != nil || swept != 0 {
		t.Fatalf("fresh cart must not be swept, swept=%d err=%v", swept, err)
	}

	f.now = f.now.Add(f.svc.cfg.CartTTL + 1)
	swept, err = f.svc.SweepExpiredCarts(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected one cart swept, got %d", swept)
	}
	if f.available(t, "p1") != 10 || f.available(t, "p2") != 10 {
		t.Fatalf("expected all reservations released")
	}
	cart, err := f.svc.GetCart(context.Background(), storeActor, "store-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart.Lines)
	}
}

func TestListOrderableProducts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.add(t, "p2", 3)

	got, err := f.svc.ListOrderableProducts(context.Background(), storeActor, "store-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected p1 and p2, got %+v", got)
	}
	if got[1].Product.ProductID != "p2" || got[1].AvailablePacks != 7 || got[1].InCart != 3 {
		t.Fatalf("unexpected p2 entry %+v", got[1])
	}
}
