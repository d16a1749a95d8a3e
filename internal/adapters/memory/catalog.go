package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

type CatalogRepository struct {
	v view
}

func (r *CatalogRepository) UpsertProduct(_ context.Context, product domain.Product) error {
	return r.v.with(func(st *state) error {
		product.VariantIDs = append([]string(nil), product.VariantIDs...)
		st.products[product.ProductID] = product
		return nil
	})
}

func (r *CatalogRepository) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	var out domain.Product
	err := r.v.with(func(st *state) error {
		product, ok := st.products[productID]
		if !ok {
			return fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
		}
		out = product
		return nil
	})
	return out, err
}

func (r *CatalogRepository) GetProducts(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(productIDs))
	err := r.v.with(func(st *state) error {
		for _, id := range productIDs {
			if product, ok := st.products[id]; ok {
				out[id] = product
			}
		}
		return nil
	})
	return out, err
}

func (r *CatalogRepository) UpsertStore(_ context.Context, store domain.Store) error {
	return r.v.with(func(st *state) error {
		st.stores[store.StoreID] = store
		return nil
	})
}

func (r *CatalogRepository) GetStore(_ context.Context, storeID string) (domain.Store, error) {
	var out domain.Store
	err := r.v.with(func(st *state) error {
		store, ok := st.stores[storeID]
		if !ok {
			return fmt.Errorf("%w: store %s", domain.ErrNotFound, storeID)
		}
		out = store
		return nil
	})
	return out, err
}

type AgencyRepository struct {
	v view
}

func (r *AgencyRepository) Get(_ context.Context, agencyID string) (domain.Agency, error) {
	var out domain.Agency
	err := r.v.with(func(st *state) error {
		agency, ok := st.agencies[agencyID]
		if !ok {
			return fmt.Errorf("%w: agency %s", domain.ErrNotFound, agencyID)
		}
		out = agency
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock here: a transaction already holds the store
// mutex.
func (r *AgencyRepository) GetForUpdate(ctx context.Context, agencyID string) (domain.Agency, error) {
	return r.Get(ctx, agencyID)
}

func (r *AgencyRepository) UpsertLimits(_ context.Context, agency domain.Agency) error {
	return r.v.with(func(st *state) error {
		current, ok := st.agencies[agency.AgencyID]
		if ok {
			agency.CurrentMonthAmount = current.CurrentMonthAmount
			agency.CurrentMonthOrders = current.CurrentMonthOrders
			agency.CounterMonth = current.CounterMonth
		}
		st.agencies[agency.AgencyID] = agency
		return nil
	})
}

func (r *AgencyRepository) SaveCounters(_ context.Context, agency domain.Agency) error {
	return r.v.with(func(st *state) error {
		current, ok := st.agencies[agency.AgencyID]
		if !ok {
			return fmt.Errorf("%w: agency %s", domain.ErrNotFound, agency.AgencyID)
		}
		current.CurrentMonthAmount = agency.CurrentMonthAmount
		current.CurrentMonthOrders = agency.CurrentMonthOrders
		current.CounterMonth = agency.CounterMonth
		current.UpdatedAt = time.Now().UTC()
		st.agencies[agency.AgencyID] = current
		return nil
	})
}

type AllocationRepository struct {
	v view
}

func (r *AllocationRepository) Add(_ context.Context, pairs []domain.Allocation, at time.Time) (int, error) {
	added := 0
	err := r.v.with(func(st *state) error {
		for _, pair := range pairs {
			if _, ok := st.allocations[pair]; ok {
				continue
			}
			st.allocations[pair] = at
			added++
		}
		return nil
	})
	return added, err
}

func (r *AllocationRepository) Remove(_ context.Context, pairs []domain.Allocation) (int, error) {
	removed := 0
	err := r.v.with(func(st *state) error {
		for _, pair := range pairs {
			if _, ok := st.allocations[pair]; !ok {
				continue
			}
			delete(st.allocations, pair)
			removed++
		}
		return nil
	})
	return removed, err
}

func (r *AllocationRepository) IsAllocated(_ context.Context, productID, storeID string) (bool, error) {
	var ok bool
	err := r.v.with(func(st *state) error {
		_, ok = st.allocations[domain.Allocation{ProductID: productID, StoreID: storeID}]
		return nil
	})
	return ok, err
}

func (r *AllocationRepository) StoresForProduct(_ context.Context, productID string) ([]string, error) {
	out := []string{}
	err := r.v.with(func(st *state) error {
		for pair := range st.allocations {
			if pair.ProductID == productID {
				out = append(out, pair.StoreID)
			}
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

func (r *AllocationRepository) ProductsForStore(_ context.Context, storeID string) ([]string, error) {
	out := []string{}
	err := r.v.with(func(st *state) error {
		for pair := range st.allocations {
			if pair.StoreID == storeID {
				out = append(out, pair.ProductID)
			}
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

var (
	_ ports.CatalogRepository    = (*CatalogRepository)(nil)
	_ ports.AgencyRepository     = (*AgencyRepository)(nil)
	_ ports.AllocationRepository = (*AllocationRepository)(nil)
)
