package application

import (
	"context"
	"fmt"
	"time"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

const (
	allocationActionAllocated   = "allocated"
	allocationActionDeallocated = "deallocated"
)

// Allocate is a set union: existing pairs are left alone and stores missing
// from the selection are never removed.
func (s *Service) Allocate(ctx context.Context, actor ports.AuthClaims, req contracts.AllocationRequest) (AllocationResult, error) {
	if err := requireRole(actor, ports.RoleAdmin); err != nil {
		return AllocationResult{}, err
	}
	pairs, productIDs, storeIDs, err := s.resolveAllocation(ctx, req)
	if err != nil {
		return AllocationResult{}, err
	}
	now := s.nowFn()
	var added int
	err = s.uow.WithinTx(ctx, func(repos ports.TxRepositories) error {
		added, err = repos.Allocations.Add(ctx, pairs, now)
		if err != nil {
			return err
		}
		if added == 0 {
			return nil
		}
		return s.enqueueAllocationChanged(ctx, repos.Outbox, actor, allocationActionAllocated, productIDs, storeIDs, now)
	})
	if err != nil {
		return AllocationResult{}, err
	}
	return AllocationResult{ProductIDs: productIDs, StoreIDs: storeIDs, Changed: added}, nil
}

func (s *Service) Deallocate(ctx context.Context, actor ports.AuthClaims, req contracts.AllocationRequest) (AllocationResult, error) {
	if err := requireRole(actor, ports.RoleAdmin); err != nil {
		return AllocationResult{}, err
	}
	pairs, productIDs, storeIDs, err := s.resolveAllocation(ctx, req)
	if err != nil {
		return AllocationResult{}, err
	}
	now := s.nowFn()
	var removed int
	err = s.uow.WithinTx(ctx, func(repos ports.TxRepositories) error {
		removed, err = repos.Allocations.Remove(ctx, pairs)
		if err != nil {
			return err
		}
		if removed == 0 {
			return nil
		}
		return s.enqueueAllocationChanged(ctx, repos.Outbox, actor, allocationActionDeallocated, productIDs, storeIDs, now)
	})
	if err != nil {
		return AllocationResult{}, err
	}
	return AllocationResult{ProductIDs: productIDs, StoreIDs: storeIDs, Changed: removed}, nil
}

// SyncProductStores replaces the store set of one product and reports the
// symmetric difference it applied.
func (s *Service) SyncProductStores(ctx context.Context, actor ports.AuthClaims, productID string, req contracts.SyncProductStoresRequest) (SyncStoresResult, error) {
	if err := requireRole(actor, ports.RoleAdmin); err != nil {
		return SyncStoresResult{}, err
	}
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return SyncStoresResult{}, err
	}
	for _, storeID := range req.StoreIDs {
		if _, err := s.catalog.GetStore(ctx, storeID); err != nil {
			return SyncStoresResult{}, err
		}
	}
	now := s.nowFn()
	result := SyncStoresResult{ProductID: productID, Added: []string{}, Removed: []string{}}
	err := s.uow.WithinTx(ctx, func(repos ports.TxRepositories) error {
		current, err := repos.Allocations.StoresForProduct(ctx, productID)
		if err != nil {
			return err
		}
		added, removed := domain.DiffStores(current, req.StoreIDs)
		if len(added) > 0 {
			pairs, _ := domain.AllocationPairs([]string{productID}, added)
			if _, err := repos.Allocations.Add(ctx, pairs, now); err != nil {
				return err
			}
			if err := s.enqueueAllocationChanged(ctx, repos.Outbox, actor, allocationActionAllocated, []string{productID}, added, now); err != nil {
				return err
			}
			result.Added = added
		}
		if len(removed) > 0 {
			pairs, _ := domain.AllocationPairs([]string{productID}, removed)
			if _, err := repos.Allocations.Remove(ctx, pairs); err != nil {
				return err
			}
			if err := s.enqueueAllocationChanged(ctx, repos.Outbox, actor, allocationActionDeallocated, []string{productID}, removed, now); err != nil {
				return err
			}
			result.Removed = removed
		}
		return nil
	})
	if err != nil {
		return SyncStoresResult{}, err
	}
	return result, nil
}

func (s *Service) resolveAllocation(ctx context.Context, req contracts.AllocationRequest) ([]domain.Allocation, []string, []string, error) {
	pairs, err := domain.AllocationPairs(req.ProductIDs, req.StoreIDs)
	if err != nil {
		return nil, nil, nil, err
	}
	productIDs := uniqueProducts(pairs)
	products, err := s.catalog.GetProducts(ctx, productIDs)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, id := range productIDs {
		if _, ok := products[id]; !ok {
			return nil, nil, nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
		}
	}
	if req.IncludeVariants {
		expanded := domain.ExpandVariants(productIDs, products)
		pairs, err = domain.AllocationPairs(expanded, req.StoreIDs)
		if err != nil {
			return nil, nil, nil, err
		}
		productIDs = uniqueProducts(pairs)
	}
	storeIDs := uniqueStores(pairs)
	for _, id := range storeIDs {
		if _, err := s.catalog.GetStore(ctx, id); err != nil {
			return nil, nil, nil, err
		}
	}
	return pairs, productIDs, storeIDs, nil
}

func (s *Service) enqueueAllocationChanged(ctx context.Context, outbox ports.OutboxRepository, actor ports.AuthClaims, action string, productIDs, storeIDs []string, now time.Time) error {
	for _, productID := range productIDs {
		if err := s.enqueueEvent(ctx, outbox, domain.EventAllocationChanged, productID, contracts.AllocationChangedPayload{
			ProductID: productID,
			Action:    action,
			StoreIDs:  storeIDs,
			ChangedBy: actor.UserID,
			ChangedAt: now.Format(time.RFC3339),
		}, now); err != nil {
			return err
		}
	}
	return nil
}

func uniqueProducts(pairs []domain.Allocation) []string {
	out := make([]string, 0, len(pairs))
	seen := map[string]struct{}{}
	for _, pair := range pairs {
		if _, ok := seen[pair.ProductID]; ok {
			continue
		}
		seen[pair.ProductID] = struct{}{}
		out = append(out, pair.ProductID)
	}
	return out
}

func uniqueStores(pairs []domain.Allocation) []string {
	out := make([]string, 0, len(pairs))
	seen := map[string]struct{}{}
	for _, pair := range pairs {
		if _, ok := seen[pair.StoreID]; ok {
			continue
		}
		seen[pair.StoreID] = struct{}{}
		out = append(out, pair.StoreID)
	}
	return out
}
