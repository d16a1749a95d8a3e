package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type catalogRepository struct {
	db *gorm.DB
}

func (r *catalogRepository) UpsertProduct(ctx context.Context, product domain.Product) error {
	rec := fromDomainProduct(product)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "price", "pack_quantity", "is_active", "variant_ids", "updated_at"}),
	}).Create(&rec).Error
}

func (r *catalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	var rec productModel
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.Product{}, fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
		}
		return domain.Product{}, err
	}
	return toDomainProduct(rec), nil
}

func (r *catalogRepository) GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	var rows []productModel
	if err := r.db.WithContext(ctx).Where("product_id IN ?", productIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ProductID] = toDomainProduct(row)
	}
	return out, nil
}

func (r *catalogRepository) UpsertStore(ctx context.Context, store domain.Store) error {
	rec := storeModel{StoreID: store.StoreID, AgencyID: store.AgencyID, Name: store.Name, UpdatedAt: store.UpdatedAt}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"agency_id", "name", "updated_at"}),
	}).Create(&rec).Error
}

func (r *catalogRepository) GetStore(ctx context.Context, storeID string) (domain.Store, error) {
	var rec storeModel
	if err := r.db.WithContext(ctx).Where("store_id = ?", storeID).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.Store{}, fmt.Errorf("%w: store %s", domain.ErrNotFound, storeID)
		}
		return domain.Store{}, err
	}
	return toDomainStore(rec), nil
}

type agencyRepository struct {
	db *gorm.DB
}

func (r *agencyRepository) Get(ctx context.Context, agencyID string) (domain.Agency, error) {
	return r.get(r.db.WithContext(ctx), agencyID)
}

func (r *agencyRepository) GetForUpdate(ctx context.Context, agencyID string) (domain.Agency, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), agencyID)
}

func (r *agencyRepository) get(db *gorm.DB, agencyID string) (domain.Agency, error) {
	var rec agencyModel
	if err := db.Where("agency_id = ?", agencyID).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.Agency{}, fmt.Errorf("%w: agency %s", domain.ErrNotFound, agencyID)
		}
		return domain.Agency{}, err
	}
	return toDomainAgency(rec), nil
}

// UpsertLimits replaces the configured limits and leaves the running
// counters untouched.
func (r *agencyRepository) UpsertLimits(ctx context.Context, agency domain.Agency) error {
	rec := agencyModel{
		AgencyID:            agency.AgencyID,
		Name:                agency.Name,
		MonthlyExpenseLimit: agency.MonthlyExpenseLimit,
		MonthlyOrderLimit:   agency.MonthlyOrderLimit,
		BudgetLimitEnabled:  agency.BudgetLimitEnabled,
		OrderLimitEnabled:   agency.OrderLimitEnabled,
		UpdatedAt:           agency.UpdatedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "agency_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "monthly_expense_limit", "monthly_order_limit",
			"budget_limit_enabled", "order_limit_enabled", "updated_at",
		}),
	}).Create(&rec).Error
}

func (r *agencyRepository) SaveCounters(ctx context.Context, agency domain.Agency) error {
	res := r.db.WithContext(ctx).Model(&agencyModel{}).
		Where("agency_id = ?", agency.AgencyID).
		Updates(map[string]any{
			"current_month_amount": agency.CurrentMonthAmount,
			"current_month_orders": agency.CurrentMonthOrders,
			"counter_month":        agency.CounterMonth,
			"updated_at":           agency.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: agency %s", domain.ErrNotFound, agency.AgencyID)
	}
	return nil
}

type allocationRepository struct {
	db *gorm.DB
}

func (r *allocationRepository) Add(ctx context.Context, pairs []domain.Allocation, at time.Time) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}
	rows := make([]allocationModel, 0, len(pairs))
	for _, pair := range pairs {
		rows = append(rows, allocationModel{ProductID: pair.ProductID, StoreID: pair.StoreID, AllocatedAt: at})
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	return int(res.RowsAffected), res.Error
}

func (r *allocationRepository) Remove(ctx context.Context, pairs []domain.Allocation) (int, error) {
	removed := 0
	for _, pair := range pairs {
		res := r.db.WithContext(ctx).
			Where("product_id = ? AND store_id = ?", pair.ProductID, pair.StoreID).
			Delete(&allocationModel{})
		if res.Error != nil {
			return removed, res.Error
		}
		removed += int(res.RowsAffected)
	}
	return removed, nil
}

func (r *allocationRepository) IsAllocated(ctx context.Context, productID, storeID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&allocationModel{}).
		Where("product_id = ? AND store_id = ?", productID, storeID).
		Count(&count).Error
	return count > 0, err
}

func (r *allocationRepository) StoresForProduct(ctx context.Context, productID string) ([]string, error) {
	out := []string{}
	err := r.db.WithContext(ctx).Model(&allocationModel{}).
		Where("product_id = ?", productID).
		Order("store_id asc").
		Pluck("store_id", &out).Error
	return out, err
}

func (r *allocationRepository) ProductsForStore(ctx context.Context, storeID string) ([]string, error) {
	out := []string{}
	err := r.db.WithContext(ctx).Model(&allocationModel{}).
		Where("store_id = ?", storeID).
		Order("product_id asc").
		Pluck("product_id", &out).Error
	return out, err
}

var (
	_ ports.CatalogRepository    = (*catalogRepository)(nil)
	_ ports.AgencyRepository     = (*agencyRepository)(nil)
	_ ports.AllocationRepository = (*allocationRepository)(nil)
)
