package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("create order: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
	assert.False(t, isUniqueViolation(nil))
}

func TestOrderMappingKeepsLineOrder(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	order := domain.Order{
		OrderID:      "o-1",
		OrderNumber:  "ORD-20261018-ABCDEF12",
		StoreID:      "s1",
		AgencyID:     "a1",
		SourceCartID: "cart-1",
		TotalAmount:  decimal.RequireFromString("25.50"),
		Status:       domain.OrderStatusConfirmed,
		CountedMonth: "2026-10",
		CreatedAt:    at,
		UpdatedAt:    at,
		Lines: []domain.OrderLine{
			{ProductID: "p2", ProductName: "Masks", UnitPrice: decimal.NewFromInt(5), PackQuantity: 50, Quantity: 3, LineTotal: decimal.NewFromInt(15)},
			{ProductID: "p1", ProductName: "Gloves", UnitPrice: decimal.RequireFromString("10.50"), PackQuantity: 12, Quantity: 1, LineTotal: decimal.RequireFromString("10.50")},
		},
	}
	rec, lines := fromDomainOrder(order)
	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].LineNo)
	assert.Equal(t, "p2", lines[0].ProductID)
	require.NotNil(t, rec.SourceCartID)

	assert.Equal(t, order, toDomainOrder(rec, lines))

	rec.SourceCartID = nil
	assert.Empty(t, toDomainOrder(rec, nil).SourceCartID)
}

func TestProductMappingRoundTripsVariants(t *testing.T) {
	t.Parallel()
	product := domain.Product{ProductID: "p1", Name: "Gloves", Price: decimal.NewFromInt(10), PackQuantity: 12, IsActive: true}
	rec := fromDomainProduct(product)
	assert.Equal(t, "[]", rec.VariantIDs)
	assert.Empty(t, toDomainProduct(rec).VariantIDs)

	product.VariantIDs = []string{"p1-l", "p1-xl"}
	assert.Equal(t, product.VariantIDs, toDomainProduct(fromDomainProduct(product)).VariantIDs)
}
