package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

func (s *Service) ValidateToken(ctx context.Context, token string) (ports.AuthClaims, error) {
	if strings.TrimSpace(token) == "" {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	claims, err := s.tokens.ValidateToken(ctx, token)
	if err != nil {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	if !claims.Valid || claims.UserID == "" {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	return claims, nil
}

func requireRole(actor ports.AuthClaims, roles ...string) error {
	if actor.UserID == "" {
		return domain.ErrUnauthorized
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q may not perform this operation", domain.ErrForbidden, actor.Role)
}

// agencyScoped roles only see their own agency's stores and orders.
func agencyScoped(actor ports.AuthClaims) bool {
	return actor.Role == ports.RoleStore || actor.Role == ports.RoleApprover
}

func checkAgency(actor ports.AuthClaims, agencyID string) error {
	if agencyScoped(actor) && actor.AgencyID != agencyID {
		return fmt.Errorf("%w: agency %s is outside your scope", domain.ErrForbidden, agencyID)
	}
	return nil
}

func (s *Service) authorizeStore(ctx context.Context, actor ports.AuthClaims, storeID string) (domain.Store, error) {
	if actor.UserID == "" {
		return domain.Store{}, domain.ErrUnauthorized
	}
	if strings.TrimSpace(storeID) == "" {
		return domain.Store{}, fmt.Errorf("%w: store_id is required", domain.ErrInvalidInput)
	}
	store, err := s.catalog.GetStore(ctx, storeID)
	if err != nil {
		return domain.Store{}, err
	}
	if err := checkAgency(actor, store.AgencyID); err != nil {
		return domain.Store{}, err
	}
	return store, nil
}
