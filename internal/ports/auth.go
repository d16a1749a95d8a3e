package ports

import "context"

const (
	RoleStore     = "store"
	RoleApprover  = "approver"
	RoleWarehouse = "warehouse"
	RoleAdmin     = "admin"
)

type AuthClaims struct {
	UserID   string
	Role     string
	AgencyID string
	Valid    bool
}

type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (AuthClaims, error)
}
