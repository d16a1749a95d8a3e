package postgres

import (
	"context"
	"fmt"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type orderRepository struct {
	db *gorm.DB
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	rec, lines := fromDomainOrder(order)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		if len(lines) == 0 {
			return nil
		}
		return tx.Create(&lines).Error
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: order %s or its cart was already submitted", domain.ErrConflict, order.OrderID)
	}
	return err
}

func (r *orderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return r.get(ctx, orderID, false)
}

func (r *orderRepository) GetForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	return r.get(ctx, orderID, true)
}

func (r *orderRepository) get(ctx context.Context, orderID string, lock bool) (domain.Order, error) {
	query := r.db.WithContext(ctx)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rec orderModel
	if err := query.Where("order_id = ?", orderID).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
		}
		return domain.Order{}, err
	}
	var lines []orderLineModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("line_no asc").Find(&lines).Error; err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(rec, lines), nil
}

func (r *orderRepository) ExistsBySourceCart(ctx context.Context, cartID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&orderModel{}).Where("source_cart_id = ?", cartID).Count(&count).Error
	return count > 0, err
}

func (r *orderRepository) UpdateStatus(ctx context.Context, params ports.UpdateOrderStatusParams) error {
	res := r.db.WithContext(ctx).Model(&orderModel{}).
		Where("order_id = ? AND status = ?", params.OrderID, string(params.From)).
		Updates(map[string]any{
			"status":        string(params.To),
			"counted_month": params.CountedMonth,
			"updated_at":    params.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&orderModel{}).Where("order_id = ?", params.OrderID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, params.OrderID)
	}
	return fmt.Errorf("%w: order %s is no longer %s", domain.ErrConflict, params.OrderID, params.From)
}

func (r *orderRepository) AppendHistory(ctx context.Context, change domain.OrderStatusChange) error {
	return r.db.WithContext(ctx).Create(&orderStatusHistoryModel{
		OrderID:    change.OrderID,
		FromStatus: string(change.FromStatus),
		ToStatus:   string(change.ToStatus),
		ChangedBy:  change.ChangedBy,
		Override:   change.Override,
		ChangedAt:  change.ChangedAt,
	}).Error
}

func (r *orderRepository) ListHistory(ctx context.Context, orderID string) ([]domain.OrderStatusChange, error) {
	var rows []orderStatusHistoryModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("history_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.OrderStatusChange, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainStatusChange(row))
	}
	return out, nil
}

func (r *orderRepository) List(ctx context.Context, filter ports.OrderFilter) ([]domain.Order, error) {
	query := r.db.WithContext(ctx).Model(&orderModel{})
	if filter.StoreID != "" {
		query = query.Where("store_id = ?", filter.StoreID)
	}
	if filter.AgencyID != "" {
		query = query.Where("agency_id = ?", filter.AgencyID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	var rows []orderModel
	if err := query.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []domain.Order{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.OrderID)
	}
	var lines []orderLineModel
	if err := r.db.WithContext(ctx).Where("order_id IN ?", ids).Order("order_id, line_no").Find(&lines).Error; err != nil {
		return nil, err
	}
	byOrder := make(map[string][]orderLineModel, len(rows))
	for _, line := range lines {
		byOrder[line.OrderID] = append(byOrder[line.OrderID], line)
	}
	out := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainOrder(row, byOrder[row.OrderID]))
	}
	return out, nil
}

var _ ports.OrderRepository = (*orderRepository)(nil)
