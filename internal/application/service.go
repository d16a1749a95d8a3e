package application

import (
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

type Service struct {
	cfg         Config
	logger      *slog.Logger
	catalog     ports.CatalogRepository
	agencies    ports.AgencyRepository
	ledger      ports.StockLedger
	allocations ports.AllocationRepository
	orders      ports.OrderRepository
	outbox      ports.OutboxRepository
	eventDedup  ports.EventDedupRepository
	idempotency ports.IdempotencyRepository
	uow         ports.UnitOfWork
	carts       ports.CartStore
	changes     ports.CartChangeLog
	tokens      ports.TokenValidator
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	Logger      *slog.Logger
	Catalog     ports.CatalogRepository
	Agencies    ports.AgencyRepository
	Ledger      ports.StockLedger
	Allocations ports.AllocationRepository
	Orders      ports.OrderRepository
	Outbox      ports.OutboxRepository
	EventDedup  ports.EventDedupRepository
	Idempotency ports.IdempotencyRepository
	UnitOfWork  ports.UnitOfWork
	Carts       ports.CartStore
	Changes     ports.CartChangeLog
	Tokens      ports.TokenValidator
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "M24-Retail-Ordering-Service"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 7 * 24 * time.Hour
	}
	if cfg.EventDedupTTL <= 0 {
		cfg.EventDedupTTL = 7 * 24 * time.Hour
	}
	if cfg.CartTTL <= 0 {
		cfg.CartTTL = 2 * time.Hour
	}
	if cfg.CartChangeTTL <= 0 {
		cfg.CartChangeTTL = 24 * time.Hour
	}
	if cfg.CartSweepLease <= 0 {
		cfg.CartSweepLease = 5 * time.Minute
	}
	if cfg.CartSweepBatch <= 0 {
		cfg.CartSweepBatch = 100
	}
	if cfg.OrderListLimit <= 0 {
		cfg.OrderListLimit = 50
	}
	if cfg.MovementHistory <= 0 {
		cfg.MovementHistory = 20
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg:         cfg,
		logger:      logger,
		catalog:     deps.Catalog,
		agencies:    deps.Agencies,
		ledger:      deps.Ledger,
		allocations: deps.Allocations,
		orders:      deps.Orders,
		outbox:      deps.Outbox,
		eventDedup:  deps.EventDedup,
		idempotency: deps.Idempotency,
		uow:         deps.UnitOfWork,
		carts:       deps.Carts,
		changes:     deps.Changes,
		tokens:      deps.Tokens,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}
