package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

type StockLedger struct {
	v view
}

func (l *StockLedger) Adjust(_ context.Context, adj domain.StockAdjustment) (domain.StockLevel, error) {
	if err := domain.ValidateAdjustment(adj); err != nil {
		return domain.StockLevel{}, err
	}
	var out domain.StockLevel
	err := l.v.with(func(st *state) error {
		key := stockKey{productID: adj.ProductID, storeID: adj.StoreID}
		level, ok := st.levels[key]
		if !ok {
			return fmt.Errorf("%w: no stock level for product %s at store %s", domain.ErrNotFound, adj.ProductID, adj.StoreID)
		}
		next, err := level.ApplyDelta(adj.Delta)
		if err != nil {
			return err
		}
		next.UpdatedAt = time.Now().UTC()
		st.levels[key] = next
		st.journal(adj, next)
		out = next
		return nil
	})
	return out, err
}

func (l *StockLedger) Restock(_ context.Context, adj domain.StockAdjustment) (domain.StockLevel, error) {
	if err := domain.ValidateAdjustment(adj); err != nil {
		return domain.StockLevel{}, err
	}
	if adj.Delta < 0 {
		return domain.StockLevel{}, fmt.Errorf("%w: restock must be positive", domain.ErrInvalidInput)
	}
	var out domain.StockLevel
	err := l.v.with(func(st *state) error {
		key := stockKey{productID: adj.ProductID, storeID: adj.StoreID}
		level, ok := st.levels[key]
		if !ok {
			level = domain.StockLevel{ProductID: adj.ProductID, StoreID: adj.StoreID}
		}
		level.TotalPacks += adj.Delta
		level.AvailablePacks += adj.Delta
		level.UpdatedAt = time.Now().UTC()
		st.levels[key] = level
		st.journal(adj, level)
		out = level
		return nil
	})
	return out, err
}

func (l *StockLedger) Get(_ context.Context, productID, storeID string) (domain.StockLevel, error) {
	var out domain.StockLevel
	err := l.v.with(func(st *state) error {
		level, ok := st.levels[stockKey{productID: productID, storeID: storeID}]
		if !ok {
			return fmt.Errorf("%w: no stock level for product %s at store %s", domain.ErrNotFound, productID, storeID)
		}
		out = level
		return nil
	})
	return out, err
}

func (l *StockLedger) ListByStore(_ context.Context, storeID string, productIDs []string) (map[string]domain.StockLevel, error) {
	out := make(map[string]domain.StockLevel, len(productIDs))
	err := l.v.with(func(st *state) error {
		for _, id := range productIDs {
			if level, ok := st.levels[stockKey{productID: id, storeID: storeID}]; ok {
				out[id] = level
			}
		}
		return nil
	})
	return out, err
}

func (l *StockLedger) ListMovements(_ context.Context, productID, storeID string, limit int) ([]domain.StockMovement, error) {
	out := []domain.StockMovement{}
	err := l.v.with(func(st *state) error {
		for i := len(st.movements) - 1; i >= 0; i-- {
			m := st.movements[i]
			if m.ProductID != productID || m.StoreID != storeID {
				continue
			}
			out = append(out, m)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (st *state) journal(adj domain.StockAdjustment, level domain.StockLevel) {
	st.movements = append(st.movements, domain.StockMovement{
		MovementID:     uuid.NewString(),
		ProductID:      adj.ProductID,
		StoreID:        adj.StoreID,
		Delta:          adj.Delta,
		AvailableAfter: level.AvailablePacks,
		Reason:         adj.Reason,
		Reference:      adj.Reference,
		CreatedAt:      level.UpdatedAt,
	})
}

var _ ports.StockLedger = (*StockLedger)(nil)
