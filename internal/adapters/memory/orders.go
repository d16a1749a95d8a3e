package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

type OrderRepository struct {
	v view
}

func (r *OrderRepository) Create(_ context.Context, order domain.Order) error {
	return r.v.with(func(st *state) error {
		if _, ok := st.orders[order.OrderID]; ok {
			return fmt.Errorf("%w: order %s already exists", domain.ErrConflict, order.OrderID)
		}
		if order.SourceCartID != "" {
			for _, existing := range st.orders {
				if existing.SourceCartID == order.SourceCartID {
					return fmt.Errorf("%w: cart %s was already submitted", domain.ErrConflict, order.SourceCartID)
				}
			}
		}
		order.Lines = append([]domain.OrderLine(nil), order.Lines...)
		st.orders[order.OrderID] = order
		return nil
	})
}

func (r *OrderRepository) Get(_ context.Context, orderID string) (domain.Order, error) {
	var out domain.Order
	err := r.v.with(func(st *state) error {
		order, ok := st.orders[orderID]
		if !ok {
			return fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
		}
		out = order
		return nil
	})
	return out, err
}

func (r *OrderRepository) GetForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	return r.Get(ctx, orderID)
}

func (r *OrderRepository) ExistsBySourceCart(_ context.Context, cartID string) (bool, error) {
	found := false
	err := r.v.with(func(st *state) error {
		for _, order := range st.orders {
			if order.SourceCartID == cartID {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *OrderRepository) UpdateStatus(_ context.Context, params ports.UpdateOrderStatusParams) error {
	return r.v.with(func(st *state) error {
		order, ok := st.orders[params.OrderID]
		if !ok {
			return fmt.Errorf("%w: order %s", domain.ErrNotFound, params.OrderID)
		}
		if order.Status != params.From {
			return fmt.Errorf("%w: order %s is %s, expected %s", domain.ErrConflict, params.OrderID, order.Status, params.From)
		}
		order.Status = params.To
		order.CountedMonth = params.CountedMonth
		order.UpdatedAt = params.UpdatedAt
		st.orders[params.OrderID] = order
		return nil
	})
}

func (r *OrderRepository) AppendHistory(_ context.Context, change domain.OrderStatusChange) error {
	return r.v.with(func(st *state) error {
		st.history[change.OrderID] = append(st.history[change.OrderID], change)
		return nil
	})
}

func (r *OrderRepository) ListHistory(_ context.Context, orderID string) ([]domain.OrderStatusChange, error) {
	var out []domain.OrderStatusChange
	err := r.v.with(func(st *state) error {
		out = append([]domain.OrderStatusChange{}, st.history[orderID]...)
		return nil
	})
	return out, err
}

func (r *OrderRepository) List(_ context.Context, filter ports.OrderFilter) ([]domain.Order, error) {
	filtered := make([]domain.Order, 0)
	err := r.v.with(func(st *state) error {
		for _, order := range st.orders {
			if filter.StoreID != "" && order.StoreID != filter.StoreID {
				continue
			}
			if filter.AgencyID != "" && order.AgencyID != filter.AgencyID {
				continue
			}
			if filter.Status != "" && order.Status != filter.Status {
				continue
			}
			filtered = append(filtered, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(filtered, func(a, b domain.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return paginate(filtered, filter.Limit, filter.Offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ ports.OrderRepository = (*OrderRepository)(nil)
