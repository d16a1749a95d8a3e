package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

type submitOrderFingerprint struct {
	OwnerID string `json:"owner_id"`
	StoreID string `json:"store_id"`
}

// SubmitOrder turns the owner's cart into an order. Within limits the order is
// confirmed and the cart reservations become its stock commitment. Over a
// limit it waits in approval_pending and the reservations are released.
func (s *Service) SubmitOrder(ctx context.Context, actor ports.AuthClaims, storeID, idempotencyKey string) (SubmitOrderResult, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		return SubmitOrderResult{}, domain.ErrIdempotencyRequired
	}
	if err := requireRole(actor, ports.RoleStore, ports.RoleAdmin); err != nil {
		return SubmitOrderResult{}, err
	}
	store, err := s.authorizeStore(ctx, actor, storeID)
	if err != nil {
		return SubmitOrderResult{}, err
	}
	fingerprint := submitOrderFingerprint{OwnerID: actor.UserID, StoreID: storeID}
	var replay SubmitOrderResult
	found, err := s.replayIdempotent(ctx, idempotencyKey, fingerprint, &replay)
	if err != nil {
		return SubmitOrderResult{}, err
	}
	if found {
		replay.Replayed = true
		return replay, nil
	}
	if err := s.reserveIdempotency(ctx, idempotencyKey, fingerprint); err != nil {
		return SubmitOrderResult{}, err
	}

	result, err := s.submitLockedCart(ctx, actor, store)
	if err != nil {
		s.releaseIdempotency(ctx, idempotencyKey)
		return SubmitOrderResult{}, err
	}
	s.completeIdempotency(ctx, idempotencyKey, http.StatusCreated, result)
	return result, nil
}

func (s *Service) submitLockedCart(ctx context.Context, actor ports.AuthClaims, store domain.Store) (SubmitOrderResult, error) {
	cart, err := s.carts.Lock(ctx, actor.UserID, store.StoreID, domain.CartLockSubmit, s.nowFn())
	if err != nil {
		return SubmitOrderResult{}, err
	}
	unlock := func() {
		if unlockErr := s.carts.Unlock(ctx, actor.UserID, store.StoreID); unlockErr != nil {
			s.logCartFailure(ctx, "unlock_cart", unlockErr)
		}
	}
	if cart.IsEmpty() {
		unlock()
		return SubmitOrderResult{}, fmt.Errorf("%w: cart is empty", domain.ErrInvalidInput)
	}

	productIDs := make([]string, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		productIDs = append(productIDs, line.ProductID)
	}
	products, err := s.catalog.GetProducts(ctx, productIDs)
	if err != nil {
		unlock()
		return SubmitOrderResult{}, err
	}
	for _, line := range cart.Lines {
		if line.Quantity <= 0 {
			continue
		}
		if _, err := s.orderableProduct(ctx, line.ProductID, store.StoreID); err != nil {
			unlock()
			return SubmitOrderResult{}, err
		}
	}
	lines, total, err := domain.BuildOrderLines(cart.Lines, products)
	if err != nil {
		unlock()
		return SubmitOrderResult{}, err
	}

	now := s.nowFn()
	month := domain.MonthKey(now)
	orderID := uuid.NewString()
	order := domain.Order{
		OrderID:      orderID,
		OrderNumber:  domain.OrderNumber(now, orderID),
		StoreID:      store.StoreID,
		AgencyID:     store.AgencyID,
		PlacedBy:     actor.UserID,
		SourceCartID: cart.CartID,
		Lines:        lines,
		TotalAmount:  total,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var evaluation domain.LimitEvaluation
	err = s.uow.WithinTx(ctx, func(repos ports.TxRepositories) error {
		agency, err := repos.Agencies.GetForUpdate(ctx, store.AgencyID)
		if err != nil {
			return err
		}
		evaluation = domain.EvaluateLimits(domain.LimitInputFor(agency, month, total))
		if evaluation.Exceeded() {
			order.Status = domain.OrderStatusApprovalPending
			for _, line := range order.Lines {
				if _, err := repos.Ledger.Adjust(ctx, domain.StockAdjustment{
					ProductID: line.ProductID, StoreID: order.StoreID, Delta: line.Quantity,
					Reason: domain.MovementCartRelease, Reference: order.OrderID,
				}); err != nil {
					return err
				}
			}
		} else {
			order.Status = domain.OrderStatusConfirmed
			order.CountedMonth = month
			if err := repos.Agencies.SaveCounters(ctx, agency.AddToMonth(month, total, 1)); err != nil {
				return err
			}
		}
		if err := repos.Orders.Create(ctx, order); err != nil {
			return err
		}
		if err := repos.Orders.AppendHistory(ctx, domain.OrderStatusChange{
			OrderID: order.OrderID, ToStatus: order.Status, ChangedBy: actor.UserID, ChangedAt: now,
		}); err != nil {
			return err
		}
		return s.enqueueEvent(ctx, repos.Outbox, domain.EventOrderSubmitted, order.OrderID, contracts.OrderSubmittedPayload{
			OrderID:          order.OrderID,
			OrderNumber:      order.OrderNumber,
			StoreID:          order.StoreID,
			AgencyID:         order.AgencyID,
			Status:           string(order.Status),
			TotalAmount:      order.TotalAmount.StringFixed(2),
			LineCount:        len(order.Lines),
			RequiresApproval: order.Status == domain.OrderStatusApprovalPending,
			SubmittedAt:      now.Format(time.RFC3339),
		}, now)
	})
	if err != nil {
		unlock()
		return SubmitOrderResult{}, err
	}
	if err := s.carts.Delete(ctx, actor.UserID, store.StoreID); err != nil {
		s.logCartFailure(ctx, "delete_submitted_cart", err)
	}
	return SubmitOrderResult{
		Order:            order,
		RequiresApproval: order.Status == domain.OrderStatusApprovalPending,
		Limits:           evaluation,
	}, nil
}

func (s *Service) GetOrder(ctx context.Context, actor ports.AuthClaims, orderID string) (OrderDetails, error) {
	if actor.UserID == "" {
		return OrderDetails{}, domain.ErrUnauthorized
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return OrderDetails{}, err
	}
	if err := checkAgency(actor, order.AgencyID); err != nil {
		return OrderDetails{}, err
	}
	history, err := s.orders.ListHistory(ctx, orderID)
	if err != nil {
		return OrderDetails{}, err
	}
	return OrderDetails{Order: order, History: history}, nil
}

func (s *Service) ListOrders(ctx context.Context, actor ports.AuthClaims, query ListOrdersQuery) ([]domain.Order, error) {
	if actor.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	filter := ports.OrderFilter{StoreID: query.StoreID, Limit: query.Limit, Offset: query.Offset}
	if query.Status != "" {
		status, err := domain.ParseOrderStatus(query.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}
	if filter.Limit <= 0 || filter.Limit > s.cfg.OrderListLimit {
		filter.Limit = s.cfg.OrderListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if agencyScoped(actor) {
		filter.AgencyID = actor.AgencyID
	}
	return s.orders.List(ctx, filter)
}

// ApproveOrder is the human override for an order waiting on a limit. Without
// overrideLimit it refuses while the guard still reports an overage.
func (s *Service) ApproveOrder(ctx context.Context, actor ports.AuthClaims, orderID string, req contracts.ApproveOrderRequest) (domain.Order, error) {
	if err := requireRole(actor, ports.RoleApprover, ports.RoleAdmin); err != nil {
		return domain.Order{}, err
	}
	return s.transitionOrder(ctx, actor, orderID, domain.OrderStatusConfirmed, req.OverrideLimit, domain.OrderStatusApprovalPending)
}

// ChangeOrderStatus moves every order independently, one transaction each. A
// failing order never blocks or rolls back the others.
func (s *Service) ChangeOrderStatus(ctx context.Context, actor ports.AuthClaims, req contracts.ChangeOrderStatusRequest) ([]OrderStatusResult, error) {
	if err := requireRole(actor, ports.RoleApprover, ports.RoleWarehouse, ports.RoleAdmin); err != nil {
		return nil, err
	}
	target, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, err
	}
	if len(req.OrderIDs) == 0 {
		return nil, fmt.Errorf("%w: order_ids is required", domain.ErrInvalidInput)
	}
	results := make([]OrderStatusResult, 0, len(req.OrderIDs))
	for _, orderID := range req.OrderIDs {
		order, err := s.transitionOrder(ctx, actor, orderID, target, req.OverrideLimit)
		if err != nil {
			code, message := statusFailure(err)
			results = append(results, OrderStatusResult{OrderID: orderID, Status: order.Status, Code: code, Message: message})
			continue
		}
		results = append(results, OrderStatusResult{OrderID: orderID, Status: order.Status, OK: true})
	}
	return results, nil
}

// transitionOrder applies one status change in its own transaction: the status
// compare-and-set, the ledger effect, the agency counters, history and outbox.
// When requireFrom is given the current status must be one of them. On
// failure the returned order still carries the unchanged status when known.
func (s *Service) transitionOrder(ctx context.Context, actor ports.AuthClaims, orderID string, to domain.OrderStatus, overrideLimit bool, requireFrom ...domain.OrderStatus) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, fmt.Errorf("%w: order_id is required", domain.ErrInvalidInput)
	}
	now := s.nowFn()
	month := domain.MonthKey(now)
	var (
		current domain.Order
		updated domain.Order
	)
	err := s.uow.WithinTx(ctx, func(repos ports.TxRepositories) error {
		order, err := repos.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		current = order
		if err := checkAgency(actor, order.AgencyID); err != nil {
			return err
		}
		if len(requireFrom) > 0 && !containsStatus(requireFrom, order.Status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, order.Status, to)
		}
		effect, err := domain.PlanTransition(order.Status, to)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusApprovalPending && to == domain.OrderStatusConfirmed &&
			actor.Role != ports.RoleApprover && actor.Role != ports.RoleAdmin {
			return fmt.Errorf("%w: approving an order requires the approver role", domain.ErrForbidden)
		}

		countedMonth := order.CountedMonth
		switch {
		case order.Status == domain.OrderStatusApprovalPending && to == domain.OrderStatusConfirmed:
			agency, err := repos.Agencies.GetForUpdate(ctx, order.AgencyID)
			if err != nil {
				return err
			}
			evaluation := domain.EvaluateLimits(domain.LimitInputFor(agency, month, order.TotalAmount))
			if evaluation.Exceeded() && !overrideLimit {
				return &LimitExceededError{Evaluation: evaluation}
			}
			if err := repos.Agencies.SaveCounters(ctx, agency.AddToMonth(month, order.TotalAmount, 1)); err != nil {
				return err
			}
			countedMonth = month
		case to.IsRejection() && order.CountedMonth != "":
			if order.CountedMonth == month {
				agency, err := repos.Agencies.GetForUpdate(ctx, order.AgencyID)
				if err != nil {
					return err
				}
				if err := repos.Agencies.SaveCounters(ctx, agency.AddToMonth(month, order.TotalAmount.Neg(), -1)); err != nil {
					return err
				}
			}
			countedMonth = ""
		}

		if effect != domain.StockEffectNone {
			reason := domain.MovementOrderCommit
			if effect == domain.StockEffectIncrement {
				reason = domain.MovementOrderRelease
			}
			for _, line := range order.Lines {
				if _, err := repos.Ledger.Adjust(ctx, domain.StockAdjustment{
					ProductID: line.ProductID,
					StoreID:   order.StoreID,
					Delta:     int(effect) * line.Quantity,
					Reason:    reason,
					Reference: order.OrderID,
				}); err != nil {
					return err
				}
			}
		}

		if err := repos.Orders.UpdateStatus(ctx, ports.UpdateOrderStatusParams{
			OrderID: order.OrderID, From: order.Status, To: to, CountedMonth: countedMonth, UpdatedAt: now,
		}); err != nil {
			return err
		}
		change := domain.OrderStatusChange{
			OrderID:    order.OrderID,
			FromStatus: order.Status,
			ToStatus:   to,
			ChangedBy:  actor.UserID,
			Override:   overrideLimit && order.Status == domain.OrderStatusApprovalPending,
			ChangedAt:  now,
		}
		if err := repos.Orders.AppendHistory(ctx, change); err != nil {
			return err
		}
		if err := s.enqueueEvent(ctx, repos.Outbox, domain.EventOrderStatusChanged, order.OrderID, contracts.OrderStatusChangedPayload{
			OrderID:    order.OrderID,
			StoreID:    order.StoreID,
			AgencyID:   order.AgencyID,
			FromStatus: string(order.Status),
			ToStatus:   string(to),
			ChangedBy:  actor.UserID,
			Override:   change.Override,
			ChangedAt:  now.Format(time.RFC3339),
		}, now); err != nil {
			return err
		}
		updated = order
		updated.Status = to
		updated.CountedMonth = countedMonth
		updated.UpdatedAt = now
		return nil
	})
	if err != nil {
		return current, err
	}
	return updated, nil
}

func containsStatus(statuses []domain.OrderStatus, status domain.OrderStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func statusFailure(err error) (string, string) {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock", err.Error()
	case errors.Is(err, domain.ErrIllegalTransition):
		return "illegal_transition", err.Error()
	case errors.Is(err, domain.ErrLimitExceeded):
		return "limit_exceeded", err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return "not_found", "order not found"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden", err.Error()
	case errors.Is(err, domain.ErrConflict):
		return "conflict", err.Error()
	default:
		return "internal_error", "internal error"
	}
}
