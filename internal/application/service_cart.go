package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

func (s *Service) GetCart(ctx context.Context, actor ports.AuthClaims, storeID string) (CartView, error) {
	if _, err := s.authorizeStore(ctx, actor, storeID); err != nil {
		return CartView{}, err
	}
	cart, err := s.carts.Get(ctx, actor.UserID, storeID)
	if err != nil {
		return CartView{}, err
	}
	return toCartView(cart), nil
}

func (s *Service) AddToCart(ctx context.Context, actor ports.AuthClaims, storeID string, req contracts.AddToCartRequest) (CartChangeResult, error) {
	if req.Quantity <= 0 {
		return CartChangeResult{}, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}
	return s.ChangeQuantity(ctx, actor, storeID, domain.QuantityChange{
		ChangeID:  req.ChangeID,
		ProductID: req.ProductID,
		Delta:     req.Quantity,
	})
}

// ChangeQuantity applies one client change to the owner's cart. Increases
// reserve stock before touching the line; decreases shrink the line before
// releasing. Replaying a change id returns the current line.
func (s *Service) ChangeQuantity(ctx context.Context, actor ports.AuthClaims, storeID string, change domain.QuantityChange) (CartChangeResult, error) {
	if strings.TrimSpace(change.ChangeID) == "" {
		change.ChangeID = uuid.NewString()
	}
	if err := change.Validate(); err != nil {
		return CartChangeResult{}, err
	}
	if err := requireRole(actor, ports.RoleStore, ports.RoleAdmin); err != nil {
		return CartChangeResult{}, err
	}
	if _, err := s.authorizeStore(ctx, actor, storeID); err != nil {
		return CartChangeResult{}, err
	}
	unitPrice := decimal.Zero
	if change.Delta > 0 {
		product, err := s.orderableProduct(ctx, change.ProductID, storeID)
		if err != nil {
			return CartChangeResult{}, err
		}
		unitPrice = product.Price
	}

	existing, err := s.changes.Begin(ctx, ports.CartChangeRecord{
		ChangeID:  change.ChangeID,
		OwnerID:   actor.UserID,
		StoreID:   storeID,
		ProductID: change.ProductID,
		Delta:     change.Delta,
		State:     ports.CartChangePending,
		UpdatedAt: s.nowFn(),
	}, s.cfg.CartChangeTTL)
	if err != nil {
		return CartChangeResult{}, err
	}
	if existing != nil {
		return s.replayChange(ctx, actor, *existing, change)
	}

	line, level, err := s.applyCartDelta(ctx, actor.UserID, storeID, change.ProductID, change.Delta, unitPrice, change.ChangeID,
		domain.MovementCartReserve, domain.MovementCartRelease)
	if err != nil {
		if discardErr := s.changes.Discard(ctx, change.ChangeID); discardErr != nil {
			s.logCartFailure(ctx, "discard_change", discardErr)
		}
		return CartChangeResult{}, err
	}
	if err := s.markApplied(ctx, change.ChangeID); err != nil {
		// A change left pending could never be reverted, so take it back.
		s.logCartFailure(ctx, "mark_change_applied", err)
		if undoErr := s.undoChange(ctx, actor.UserID, storeID, change); undoErr != nil {
			s.logCartFailure(ctx, "undo_unrecorded_change", undoErr)
		} else if discardErr := s.changes.Discard(ctx, change.ChangeID); discardErr != nil {
			s.logCartFailure(ctx, "discard_change", discardErr)
		}
		return CartChangeResult{}, fmt.Errorf("record change %s: %w", change.ChangeID, err)
	}
	return CartChangeResult{
		ChangeID:       change.ChangeID,
		ProductID:      change.ProductID,
		StoreID:        storeID,
		Quantity:       line.Quantity,
		AvailablePacks: level.AvailablePacks,
	}, nil
}

const markAppliedAttempts = 3

// undoChange applies the inverse of a change that reached the cart but could
// not be recorded.
func (s *Service) undoChange(ctx context.Context, ownerID, storeID string, change domain.QuantityChange) error {
	inverse := change.Inverse()
	unitPrice := decimal.Zero
	if inverse.Delta > 0 {
		product, err := s.catalog.GetProduct(ctx, change.ProductID)
		if err != nil {
			return err
		}
		unitPrice = product.Price
	}
	_, _, err := s.applyCartDelta(ctx, ownerID, storeID, change.ProductID, inverse.Delta, unitPrice, "undo:"+change.ChangeID,
		domain.MovementCartReserve, domain.MovementCartRelease)
	return err
}

func (s *Service) markApplied(ctx context.Context, changeID string) error {
	var err error
	for attempt := 0; attempt < markAppliedAttempts; attempt++ {
		if err = s.changes.Transition(ctx, changeID, ports.CartChangePending, ports.CartChangeApplied); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (s *Service) replayChange(ctx context.Context, actor ports.AuthClaims, rec ports.CartChangeRecord, change domain.QuantityChange) (CartChangeResult, error) {
	if rec.OwnerID != actor.UserID || rec.ProductID != change.ProductID || rec.Delta != change.Delta {
		return CartChangeResult{}, fmt.Errorf("%w: change id %s already used for a different change", domain.ErrConflict, change.ChangeID)
	}
	switch rec.State {
	case ports.CartChangeApplied:
		result, err := s.currentLine(ctx, rec)
		result.Replayed = true
		return result, err
	case ports.CartChangeReverted:
		return CartChangeResult{}, fmt.Errorf("%w: change %s was reverted", domain.ErrConflict, change.ChangeID)
	default:
		return CartChangeResult{}, fmt.Errorf("%w: change %s", domain.ErrChangeInFlight, change.ChangeID)
	}
}

// RevertChange undoes an applied change by its exact inverse, at most once. A
// revert that arrives before its change leaves a tombstone so the late
// original is refused.
func (s *Service) RevertChange(ctx context.Context, actor ports.AuthClaims, changeID string) (CartChangeResult, error) {
	if strings.TrimSpace(changeID) == "" {
		return CartChangeResult{}, fmt.Errorf("%w: change_id is required", domain.ErrInvalidInput)
	}
	if actor.UserID == "" {
		return CartChangeResult{}, domain.ErrUnauthorized
	}
	rec, err := s.changes.BeginRevert(ctx, changeID, actor.UserID, s.cfg.CartChangeTTL)
	if err != nil {
		return CartChangeResult{}, err
	}
	if rec.State != ports.CartChangeReverting {
		result := CartChangeResult{ChangeID: changeID, ProductID: rec.ProductID, StoreID: rec.StoreID, Reverted: true}
		if rec.ProductID == "" {
			return result, nil
		}
		current, err := s.currentLine(ctx, rec)
		current.Reverted = true
		return current, err
	}

	inverse := domain.QuantityChange{ChangeID: rec.ChangeID, ProductID: rec.ProductID, Delta: rec.Delta}.Inverse()
	unitPrice := decimal.Zero
	if inverse.Delta > 0 {
		product, err := s.orderableProduct(ctx, rec.ProductID, rec.StoreID)
		if err != nil {
			s.restoreApplied(ctx, changeID)
			return CartChangeResult{}, err
		}
		unitPrice = product.Price
	}
	line, level, err := s.applyCartDelta(ctx, rec.OwnerID, rec.StoreID, rec.ProductID, inverse.Delta, unitPrice, "revert:"+changeID,
		domain.MovementCartReserve, domain.MovementCartRelease)
	if err != nil {
		s.restoreApplied(ctx, changeID)
		if errors.Is(err, domain.ErrInvalidInput) {
			return CartChangeResult{}, fmt.Errorf("%w: line changed since %s was applied", domain.ErrConflict, changeID)
		}
		return CartChangeResult{}, err
	}
	if err := s.changes.Transition(ctx, changeID, ports.CartChangeReverting, ports.CartChangeReverted); err != nil {
		s.logCartFailure(ctx, "mark_change_reverted", err)
	}
	return CartChangeResult{
		ChangeID:       changeID,
		ProductID:      rec.ProductID,
		StoreID:        rec.StoreID,
		Quantity:       line.Quantity,
		AvailablePacks: level.AvailablePacks,
		Reverted:       true,
	}, nil
}

func (s *Service) restoreApplied(ctx context.Context, changeID string) {
	if err := s.changes.Transition(ctx, changeID, ports.CartChangeReverting, ports.CartChangeApplied); err != nil {
		s.logCartFailure(ctx, "restore_change_applied", err)
	}
}

// applyCartDelta keeps the ledger and the cart line in step. The side that
// can refuse goes first and is compensated if the second write fails.
func (s *Service) applyCartDelta(ctx context.Context, ownerID, storeID, productID string, delta int, unitPrice decimal.Decimal, reference string, reserve, release domain.MovementReason) (domain.CartLine, domain.StockLevel, error) {
	cartChange := ports.ApplyCartChangeParams{
		OwnerID:   ownerID,
		StoreID:   storeID,
		ProductID: productID,
		Delta:     delta,
		UnitPrice: unitPrice,
		At:        s.nowFn(),
	}
	if delta > 0 {
		level, err := s.ledger.Adjust(ctx, domain.StockAdjustment{
			ProductID: productID, StoreID: storeID, Delta: -delta, Reason: reserve, Reference: reference,
		})
		if err != nil {
			return domain.CartLine{}, domain.StockLevel{}, err
		}
		line, err := s.carts.ApplyChange(ctx, cartChange)
		if err != nil {
			if _, undoErr := s.ledger.Adjust(ctx, domain.StockAdjustment{
				ProductID: productID, StoreID: storeID, Delta: delta, Reason: release, Reference: reference,
			}); undoErr != nil {
				s.logCartFailure(ctx, "compensate_reserve", undoErr)
			}
			return domain.CartLine{}, domain.StockLevel{}, err
		}
		return line, level, nil
	}

	line, err := s.carts.ApplyChange(ctx, cartChange)
	if err != nil {
		return domain.CartLine{}, domain.StockLevel{}, err
	}
	level, err := s.ledger.Adjust(ctx, domain.StockAdjustment{
		ProductID: productID, StoreID: storeID, Delta: -delta, Reason: release, Reference: reference,
	})
	if err != nil {
		cartChange.Delta = -delta
		cartChange.UnitPrice = line.UnitPrice
		if _, undoErr := s.carts.ApplyChange(ctx, cartChange); undoErr != nil {
			s.logCartFailure(ctx, "compensate_release", undoErr)
		}
		return domain.CartLine{}, domain.StockLevel{}, err
	}
	return line, level, nil
}

func (s *Service) currentLine(ctx context.Context, rec ports.CartChangeRecord) (CartChangeResult, error) {
	cart, err := s.carts.Get(ctx, rec.OwnerID, rec.StoreID)
	if err != nil {
		return CartChangeResult{}, err
	}
	level, err := s.ledger.Get(ctx, rec.ProductID, rec.StoreID)
	if err != nil {
		return CartChangeResult{}, err
	}
	line, _ := cart.Line(rec.ProductID)
	return CartChangeResult{
		ChangeID:       rec.ChangeID,
		ProductID:      rec.ProductID,
		StoreID:        rec.StoreID,
		Quantity:       line.Quantity,
		AvailablePacks: level.AvailablePacks,
	}, nil
}

func (s *Service) orderableProduct(ctx context.Context, productID, storeID string) (domain.Product, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !product.IsActive {
		return domain.Product{}, fmt.Errorf("%w: product %s is inactive", domain.ErrAllocationConflict, productID)
	}
	allocated, err := s.allocations.IsAllocated(ctx, productID, storeID)
	if err != nil {
		return domain.Product{}, err
	}
	if !allocated {
		return domain.Product{}, fmt.Errorf("%w: product %s at store %s", domain.ErrAllocationConflict, productID, storeID)
	}
	return product, nil
}

func (s *Service) PreviewLimits(ctx context.Context, actor ports.AuthClaims, storeID string) (LimitPreview, error) {
	store, err := s.authorizeStore(ctx, actor, storeID)
	if err != nil {
		return LimitPreview{}, err
	}
	cart, err := s.carts.Get(ctx, actor.UserID, storeID)
	if err != nil {
		return LimitPreview{}, err
	}
	agency, err := s.agencies.Get(ctx, store.AgencyID)
	if err != nil {
		return LimitPreview{}, err
	}
	month := domain.MonthKey(s.nowFn())
	total := cart.Total()
	return LimitPreview{
		StoreID:    storeID,
		AgencyID:   store.AgencyID,
		Month:      month,
		CartTotal:  total,
		Evaluation: domain.EvaluateLimits(domain.LimitInputFor(agency, month, total)),
	}, nil
}

// SweepExpiredCarts releases the reservations of carts idle past the cart
// TTL and deletes them. Carts already turned into orders are only deleted,
// and a cart locked by a submit younger than the TTL is left alone.
func (s *Service) SweepExpiredCarts(ctx context.Context) (int, error) {
	now := s.nowFn()
	refs, err := s.carts.ClaimIdle(ctx, now.Add(-s.cfg.CartTTL), now.Add(s.cfg.CartSweepLease), s.cfg.CartSweepBatch)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, ref := range refs {
		removed, err := s.expireCart(ctx, ref)
		if err != nil {
			s.logger.WarnContext(ctx, "cart expiry failed",
				"module", "application",
				"layer", "service",
				"operation", "expire_cart",
				"outcome", "failure",
				"owner_id", ref.OwnerID,
				"store_id", ref.StoreID,
				"error", err,
			)
			continue
		}
		if removed {
			swept++
		}
	}
	return swept, nil
}

// expireCart reports whether the cart was removed. The cart is locked before
// anything is released so a concurrent change is refused and compensated
// rather than lost with the delete.
func (s *Service) expireCart(ctx context.Context, ref ports.CartRef) (bool, error) {
	now := s.nowFn()
	cart, err := s.carts.Get(ctx, ref.OwnerID, ref.StoreID)
	if err != nil {
		return false, err
	}
	if cart.Locked {
		submitted, err := s.orders.ExistsBySourceCart(ctx, cart.CartID)
		if err != nil {
			return false, err
		}
		switch {
		case submitted:
			return true, s.carts.Delete(ctx, ref.OwnerID, ref.StoreID)
		case cart.LockedBy == domain.CartLockExpiry:
			// An earlier sweep committed the release and then failed to delete.
			return true, s.carts.Delete(ctx, ref.OwnerID, ref.StoreID)
		case now.Sub(cart.LockedAt) < s.cfg.CartTTL:
			return false, nil
		}
		if err := s.carts.Unlock(ctx, ref.OwnerID, ref.StoreID); err != nil {
			return false, err
		}
	}

	locked, err := s.carts.Lock(ctx, ref.OwnerID, ref.StoreID, domain.CartLockExpiry, now)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrInvalidInput) {
			return false, nil
		}
		return false, err
	}
	err = s.uow.WithinTx(ctx, func(repos ports.TxRepositories) error {
		for _, line := range locked.Lines {
			if line.Quantity <= 0 {
				continue
			}
			if _, err := repos.Ledger.Adjust(ctx, domain.StockAdjustment{
				ProductID: line.ProductID, StoreID: ref.StoreID, Delta: line.Quantity,
				Reason: domain.MovementCartExpired, Reference: "expire:" + locked.CartID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if unlockErr := s.carts.Unlock(ctx, ref.OwnerID, ref.StoreID); unlockErr != nil {
			s.logCartFailure(ctx, "unlock_expiring_cart", unlockErr)
		}
		return false, err
	}
	return true, s.carts.Delete(ctx, ref.OwnerID, ref.StoreID)
}

func (s *Service) logCartFailure(ctx context.Context, operation string, err error) {
	s.logger.ErrorContext(ctx, "cart bookkeeping failed",
		"module", "application",
		"layer", "service",
		"operation", operation,
		"outcome", "failure",
		"error", err,
	)
}

func toCartView(cart domain.Cart) CartView {
	view := CartView{
		CartID:  cart.CartID,
		StoreID: cart.StoreID,
		Lines:   cart.Lines,
		Total:   cart.Total(),
	}
	if view.Lines == nil {
		view.Lines = []domain.CartLine{}
	}
	if !cart.UpdatedAt.IsZero() {
		updated := cart.UpdatedAt
		view.UpdatedAt = &updated
	}
	return view
}
