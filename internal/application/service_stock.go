package application

import (
	"context"
	"fmt"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

func (s *Service) Restock(ctx context.Context, actor ports.AuthClaims, req contracts.RestockRequest) (domain.StockLevel, error) {
	if err := requireRole(actor, ports.RoleAdmin, ports.RoleWarehouse); err != nil {
		return domain.StockLevel{}, err
	}
	return s.restock(ctx, req.ProductID, req.StoreID, req.Packs, req.Reference)
}

func (s *Service) restock(ctx context.Context, productID, storeID string, packs int, reference string) (domain.StockLevel, error) {
	if packs <= 0 {
		return domain.StockLevel{}, fmt.Errorf("%w: packs must be positive", domain.ErrInvalidInput)
	}
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return domain.StockLevel{}, err
	}
	if _, err := s.catalog.GetStore(ctx, storeID); err != nil {
		return domain.StockLevel{}, err
	}
	return s.ledger.Restock(ctx, domain.StockAdjustment{
		ProductID: productID,
		StoreID:   storeID,
		Delta:     packs,
		Reason:    domain.MovementRestock,
		Reference: reference,
	})
}

func (s *Service) GetStockMovements(ctx context.Context, actor ports.AuthClaims, productID, storeID string) ([]domain.StockMovement, error) {
	if err := requireRole(actor, ports.RoleAdmin, ports.RoleWarehouse); err != nil {
		return nil, err
	}
	return s.ledger.ListMovements(ctx, productID, storeID, s.cfg.MovementHistory)
}

// ListOrderableProducts lists the active products allocated to the store with
// their current availability and the caller's cart quantity.
func (s *Service) ListOrderableProducts(ctx context.Context, actor ports.AuthClaims, storeID string) ([]OrderableProduct, error) {
	if _, err := s.authorizeStore(ctx, actor, storeID); err != nil {
		return nil, err
	}
	productIDs, err := s.allocations.ProductsForStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if len(productIDs) == 0 {
		return []OrderableProduct{}, nil
	}
	products, err := s.catalog.GetProducts(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	levels, err := s.ledger.ListByStore(ctx, storeID, productIDs)
	if err != nil {
		return nil, err
	}
	cart, err := s.carts.Get(ctx, actor.UserID, storeID)
	if err != nil {
		return nil, err
	}
	out := make([]OrderableProduct, 0, len(productIDs))
	for _, id := range productIDs {
		product, ok := products[id]
		if !ok || !product.IsActive {
			continue
		}
		line, _ := cart.Line(id)
		out = append(out, OrderableProduct{
			Product:        product,
			AvailablePacks: levels[id].AvailablePacks,
			InCart:         line.Quantity,
		})
	}
	return out, nil
}
