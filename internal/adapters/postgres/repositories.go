package postgres

import (
	"context"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Catalog     ports.CatalogRepository
	Agencies    ports.AgencyRepository
	Ledger      ports.StockLedger
	Allocations ports.AllocationRepository
	Orders      ports.OrderRepository
	Outbox      ports.OutboxRepository
	EventDedup  ports.EventDedupRepository
	Idempotency ports.IdempotencyRepository
	UnitOfWork  ports.UnitOfWork
}

func NewRepositories(db *gorm.DB) Repositories {
	tx := bind(db)
	return Repositories{
		Catalog:     tx.Catalog,
		Agencies:    tx.Agencies,
		Ledger:      tx.Ledger,
		Allocations: tx.Allocations,
		Orders:      tx.Orders,
		Outbox:      tx.Outbox,
		EventDedup:  &eventDedupRepository{db: db},
		Idempotency: &idempotencyRepository{db: db},
		UnitOfWork:  &unitOfWork{db: db},
	}
}

func bind(db *gorm.DB) ports.TxRepositories {
	return ports.TxRepositories{
		Catalog:     &catalogRepository{db: db},
		Agencies:    &agencyRepository{db: db},
		Ledger:      &stockLedger{db: db},
		Allocations: &allocationRepository{db: db},
		Orders:      &orderRepository{db: db},
		Outbox:      &outboxRepository{db: db},
	}
}

type unitOfWork struct {
	db *gorm.DB
}

// WithinTx hands fn repositories bound to one transaction. Repositories that
// open their own transaction nest as savepoints inside it.
func (u *unitOfWork) WithinTx(ctx context.Context, fn func(repos ports.TxRepositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(bind(tx))
	})
}

var _ ports.UnitOfWork = (*unitOfWork)(nil)
