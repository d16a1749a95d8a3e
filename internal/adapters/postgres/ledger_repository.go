package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
	"gorm.io/gorm"
)

const adjustLevelSQL = `
UPDATE stock_levels
   SET available_packs = available_packs + ?, updated_at = ?
 WHERE product_id = ? AND store_id = ? AND available_packs + ? >= 0
RETURNING product_id, store_id, total_packs, available_packs, updated_at`

const restockLevelSQL = `
INSERT INTO stock_levels (product_id, store_id, total_packs, available_packs, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (product_id, store_id) DO UPDATE
   SET total_packs = stock_levels.total_packs + EXCLUDED.total_packs,
       available_packs = stock_levels.available_packs + EXCLUDED.available_packs,
       updated_at = EXCLUDED.updated_at
RETURNING product_id, store_id, total_packs, available_packs, updated_at`

type stockLedger struct {
	db *gorm.DB
}

// Adjust is one conditional UPDATE, so concurrent deltas on the same level
// serialise on the row and a decrement that would go negative matches no row.
func (l *stockLedger) Adjust(ctx context.Context, adj domain.StockAdjustment) (domain.StockLevel, error) {
	if err := domain.ValidateAdjustment(adj); err != nil {
		return domain.StockLevel{}, err
	}
	var out domain.StockLevel
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		var row stockLevelModel
		res := tx.Raw(adjustLevelSQL, adj.Delta, now, adj.ProductID, adj.StoreID, adj.Delta).Scan(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&stockLevelModel{}).
				Where("product_id = ? AND store_id = ?", adj.ProductID, adj.StoreID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("%w: no stock level for product %s at store %s", domain.ErrNotFound, adj.ProductID, adj.StoreID)
			}
			return fmt.Errorf("%w: product %s at store %s", domain.ErrInsufficientStock, adj.ProductID, adj.StoreID)
		}
		out = toDomainStockLevel(row)
		return journal(tx, adj, out)
	})
	return out, err
}

func (l *stockLedger) Restock(ctx context.Context, adj domain.StockAdjustment) (domain.StockLevel, error) {
	if err := domain.ValidateAdjustment(adj); err != nil {
		return domain.StockLevel{}, err
	}
	if adj.Delta < 0 {
		return domain.StockLevel{}, fmt.Errorf("%w: restock must be positive", domain.ErrInvalidInput)
	}
	var out domain.StockLevel
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row stockLevelModel
		if err := tx.Raw(restockLevelSQL, adj.ProductID, adj.StoreID, adj.Delta, adj.Delta, time.Now().UTC()).Scan(&row).Error; err != nil {
			return err
		}
		out = toDomainStockLevel(row)
		return journal(tx, adj, out)
	})
	return out, err
}

func journal(tx *gorm.DB, adj domain.StockAdjustment, level domain.StockLevel) error {
	return tx.Create(&stockMovementModel{
		MovementID:     uuid.New(),
		ProductID:      adj.ProductID,
		StoreID:        adj.StoreID,
		Delta:          adj.Delta,
		AvailableAfter: level.AvailablePacks,
		Reason:         string(adj.Reason),
		Reference:      adj.Reference,
		CreatedAt:      level.UpdatedAt,
	}).Error
}

func (l *stockLedger) Get(ctx context.Context, productID, storeID string) (domain.StockLevel, error) {
	var rec stockLevelModel
	if err := l.db.WithContext(ctx).Where("product_id = ? AND store_id = ?", productID, storeID).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.StockLevel{}, fmt.Errorf("%w: no stock level for product %s at store %s", domain.ErrNotFound, productID, storeID)
		}
		return domain.StockLevel{}, err
	}
	return toDomainStockLevel(rec), nil
}

func (l *stockLedger) ListByStore(ctx context.Context, storeID string, productIDs []string) (map[string]domain.StockLevel, error) {
	out := make(map[string]domain.StockLevel, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	var rows []stockLevelModel
	if err := l.db.WithContext(ctx).Where("store_id = ? AND product_id IN ?", storeID, productIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ProductID] = toDomainStockLevel(row)
	}
	return out, nil
}

func (l *stockLedger) ListMovements(ctx context.Context, productID, storeID string, limit int) ([]domain.StockMovement, error) {
	query := l.db.WithContext(ctx).
		Where("product_id = ? AND store_id = ?", productID, storeID).
		Order("created_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []stockMovementModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.StockMovement, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainStockMovement(row))
	}
	return out, nil
}

var _ ports.StockLedger = (*stockLedger)(nil)
