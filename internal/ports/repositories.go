package ports

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
)

type CatalogRepository interface {
	UpsertProduct(ctx context.Context, product domain.Product) error
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	UpsertStore(ctx context.Context, store domain.Store) error
	GetStore(ctx context.Context, storeID string) (domain.Store, error)
}

type AgencyRepository interface {
	Get(ctx context.Context, agencyID string) (domain.Agency, error)
	// GetForUpdate locks the agency row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, agencyID string) (domain.Agency, error)
	UpsertLimits(ctx context.Context, agency domain.Agency) error
	SaveCounters(ctx context.Context, agency domain.Agency) error
}

// StockLedger owns the per-store available counters. Adjust is atomic per
// (product, store) and journals a movement for every applied delta.
type StockLedger interface {
	Adjust(ctx context.Context, adj domain.StockAdjustment) (domain.StockLevel, error)
	Restock(ctx context.Context, adj domain.StockAdjustment) (domain.StockLevel, error)
	Get(ctx context.Context, productID, storeID string) (domain.StockLevel, error)
	ListByStore(ctx context.Context, storeID string, productIDs []string) (map[string]domain.StockLevel, error)
	ListMovements(ctx context.Context, productID, storeID string, limit int) ([]domain.StockMovement, error)
}

type AllocationRepository interface {
	Add(ctx context.Context, pairs []domain.Allocation, at time.Time) (int, error)
	Remove(ctx context.Context, pairs []domain.Allocation) (int, error)
	IsAllocated(ctx context.Context, productID, storeID string) (bool, error)
	StoresForProduct(ctx context.Context, productID string) ([]string, error)
	ProductsForStore(ctx context.Context, storeID string) ([]string, error)
}

type OrderFilter struct {
	StoreID  string
	AgencyID string
	Status   domain.OrderStatus
	Limit    int
	Offset   int
}

type UpdateOrderStatusParams struct {
	OrderID      string
	From         domain.OrderStatus
	To           domain.OrderStatus
	CountedMonth string
	UpdatedAt    time.Time
}

type OrderRepository interface {
	// Create fails with ErrConflict when the source cart was already submitted.
	Create(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
	GetForUpdate(ctx context.Context, orderID string) (domain.Order, error)
	ExistsBySourceCart(ctx context.Context, cartID string) (bool, error)
	// UpdateStatus is a compare-and-set on From; a lost race is ErrConflict.
	UpdateStatus(ctx context.Context, params UpdateOrderStatusParams) error
	AppendHistory(ctx context.Context, change domain.OrderStatusChange) error
	ListHistory(ctx context.Context, orderID string) ([]domain.OrderStatusChange, error)
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
}

type EventDedupRepository interface {
	IsDuplicate(ctx context.Context, eventID string, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string, expiresAt time.Time) error
}

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string, now time.Time) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
	Release(ctx context.Context, key string) error
}

// TxRepositories are bound to one transaction.
type TxRepositories struct {
	Catalog     CatalogRepository
	Agencies    AgencyRepository
	Ledger      StockLedger
	Allocations AllocationRepository
	Orders      OrderRepository
	Outbox      OutboxRepository
}

// UnitOfWork runs fn in a single transaction; returning an error rolls back
// every write made through repos.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
