package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
)

// HandleDomainEvent applies a catalog or agency event. Events are
// deduplicated by id and only marked processed once they were applied.
func (s *Service) HandleDomainEvent(ctx context.Context, envelope contracts.EventEnvelope) error {
	if err := validateEnvelope(envelope); err != nil {
		return err
	}
	if !domain.IsCanonicalInputEvent(envelope.EventType) {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedEventType, envelope.EventType)
	}
	dup, err := s.eventDedup.IsDuplicate(ctx, envelope.EventID, s.nowFn())
	if err != nil {
		return err
	}
	if dup {
		return nil
	}

	switch envelope.EventType {
	case domain.EventCatalogProductUpserted:
		err = s.applyProductUpserted(ctx, envelope.Data)
	case domain.EventCatalogStockReceived:
		err = s.applyStockReceived(ctx, envelope)
	case domain.EventAgencyLimitsUpdated:
		err = s.applyAgencyLimits(ctx, envelope.Data)
	case domain.EventAgencyStoreUpserted:
		err = s.applyStoreUpserted(ctx, envelope.Data)
	}
	if err != nil {
		return err
	}
	return s.eventDedup.MarkProcessed(ctx, envelope.EventID, envelope.EventType, s.nowFn().Add(s.cfg.EventDedupTTL))
}

func validateEnvelope(envelope contracts.EventEnvelope) error {
	if strings.TrimSpace(envelope.EventID) == "" || strings.TrimSpace(envelope.EventType) == "" {
		return fmt.Errorf("%w: event_id and event_type are required", domain.ErrInvalidInput)
	}
	if len(envelope.Data) == 0 {
		return fmt.Errorf("%w: event data is required", domain.ErrInvalidInput)
	}
	return nil
}

func (s *Service) applyProductUpserted(ctx context.Context, raw json.RawMessage) error {
	var payload contracts.ProductUpsertedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	price, err := decimal.NewFromString(payload.Price)
	if err != nil {
		return fmt.Errorf("%w: invalid price %q", domain.ErrInvalidInput, payload.Price)
	}
	product := domain.Product{
		ProductID:    payload.ProductID,
		Name:         payload.Name,
		Price:        price,
		PackQuantity: payload.PackQuantity,
		IsActive:     payload.IsActive,
		VariantIDs:   payload.VariantIDs,
		UpdatedAt:    s.nowFn(),
	}
	if err := domain.ValidateProduct(product); err != nil {
		return err
	}
	return s.catalog.UpsertProduct(ctx, product)
}

func (s *Service) applyStockReceived(ctx context.Context, envelope contracts.EventEnvelope) error {
	var payload contracts.StockReceivedPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	reference := payload.Reference
	if reference == "" {
		reference = envelope.EventID
	}
	_, err := s.restock(ctx, payload.ProductID, payload.StoreID, payload.Packs, reference)
	return err
}

func (s *Service) applyAgencyLimits(ctx context.Context, raw json.RawMessage) error {
	var payload contracts.AgencyLimitsUpdatedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	limit := decimal.Zero
	if payload.MonthlyExpenseLimit != "" {
		parsed, err := decimal.NewFromString(payload.MonthlyExpenseLimit)
		if err != nil {
			return fmt.Errorf("%w: invalid monthly_expense_limit %q", domain.ErrInvalidInput, payload.MonthlyExpenseLimit)
		}
		limit = parsed
	}
	agency := domain.Agency{
		AgencyID:            payload.AgencyID,
		Name:                payload.Name,
		MonthlyExpenseLimit: limit,
		MonthlyOrderLimit:   payload.MonthlyOrderLimit,
		BudgetLimitEnabled:  payload.BudgetLimitEnabled,
		OrderLimitEnabled:   payload.OrderLimitEnabled,
		UpdatedAt:           s.nowFn(),
	}
	if err := domain.ValidateAgency(agency); err != nil {
		return err
	}
	return s.agencies.UpsertLimits(ctx, agency)
}

func (s *Service) applyStoreUpserted(ctx context.Context, raw json.RawMessage) error {
	var payload contracts.StoreUpsertedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if strings.TrimSpace(payload.StoreID) == "" || strings.TrimSpace(payload.AgencyID) == "" {
		return fmt.Errorf("%w: store_id and agency_id are required", domain.ErrInvalidInput)
	}
	return s.catalog.UpsertStore(ctx, domain.Store{
		StoreID:   payload.StoreID,
		AgencyID:  payload.AgencyID,
		Name:      payload.Name,
		UpdatedAt: s.nowFn(),
	})
}
