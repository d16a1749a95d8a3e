package memory

import (
	"context"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

type stockKey struct {
	productID string
	storeID   string
}

type dedupRecord struct {
	eventType string
	expiresAt time.Time
}

type state struct {
	products    map[string]domain.Product
	stores      map[string]domain.Store
	agencies    map[string]domain.Agency
	levels      map[stockKey]domain.StockLevel
	movements   []domain.StockMovement
	allocations map[domain.Allocation]time.Time
	orders      map[string]domain.Order
	history     map[string][]domain.OrderStatusChange
	outbox      []ports.OutboxRecord
	dedup       map[string]dedupRecord
	idempotency map[string]ports.IdempotencyRecord
}

func newState() *state {
	return &state{
		products:    make(map[string]domain.Product),
		stores:      make(map[string]domain.Store),
		agencies:    make(map[string]domain.Agency),
		levels:      make(map[stockKey]domain.StockLevel),
		allocations: make(map[domain.Allocation]time.Time),
		orders:      make(map[string]domain.Order),
		history:     make(map[string][]domain.OrderStatusChange),
		dedup:       make(map[string]dedupRecord),
		idempotency: make(map[string]ports.IdempotencyRecord),
	}
}

// clone copies every table. Values stored in the maps are never mutated in
// place, so copying the containers is enough.
func (s *state) clone() *state {
	out := newState()
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.stores {
		out.stores[k] = v
	}
	for k, v := range s.agencies {
		out.agencies[k] = v
	}
	for k, v := range s.levels {
		out.levels[k] = v
	}
	out.movements = append([]domain.StockMovement(nil), s.movements...)
	for k, v := range s.allocations {
		out.allocations[k] = v
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	for k, v := range s.history {
		out.history[k] = append([]domain.OrderStatusChange(nil), v...)
	}
	out.outbox = append([]ports.OutboxRecord(nil), s.outbox...)
	for k, v := range s.dedup {
		out.dedup[k] = v
	}
	for k, v := range s.idempotency {
		out.idempotency[k] = v
	}
	return out
}

// Store is the in-memory database behind every repository of this package.
// One mutex serialises access; WithinTx works on a copy and swaps it in on
// success.
type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

// view binds repository methods either to the live state (taking the lock per
// call) or to a transaction copy (already under the lock).
type view struct {
	store *Store
	tx    *state
}

func (v view) with(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

type Repositories struct {
	Catalog     *CatalogRepository
	Agencies    *AgencyRepository
	Ledger      *StockLedger
	Allocations *AllocationRepository
	Orders      *OrderRepository
	Outbox      *OutboxRepository
	EventDedup  *EventDedupRepository
	Idempotency *IdempotencyRepository
}

func (s *Store) Repositories() Repositories {
	return repositoriesFor(view{store: s})
}

func repositoriesFor(v view) Repositories {
	return Repositories{
		Catalog:     &CatalogRepository{v: v},
		Agencies:    &AgencyRepository{v: v},
		Ledger:      &StockLedger{v: v},
		Allocations: &AllocationRepository{v: v},
		Orders:      &OrderRepository{v: v},
		Outbox:      &OutboxRepository{v: v},
		EventDedup:  &EventDedupRepository{v: v},
		Idempotency: &IdempotencyRepository{v: v},
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(repos ports.TxRepositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.state.clone()
	repos := repositoriesFor(view{store: s, tx: tx})
	if err := fn(ports.TxRepositories{
		Catalog:     repos.Catalog,
		Agencies:    repos.Agencies,
		Ledger:      repos.Ledger,
		Allocations: repos.Allocations,
		Orders:      repos.Orders,
		Outbox:      repos.Outbox,
	}); err != nil {
		return err
	}
	s.state = tx
	return nil
}

var _ ports.UnitOfWork = (*Store)(nil)
