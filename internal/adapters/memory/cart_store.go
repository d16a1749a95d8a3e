package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

type cartEntry struct {
	cart     domain.Cart
	activeAt time.Time
}

type CartStore struct {
	mu    sync.Mutex
	carts map[ports.CartRef]*cartEntry
}

func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[ports.CartRef]*cartEntry)}
}

func (s *CartStore) Get(_ context.Context, ownerID, storeID string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.carts[ports.CartRef{OwnerID: ownerID, StoreID: storeID}]
	if !ok {
		return domain.Cart{OwnerID: ownerID, StoreID: storeID}, nil
	}
	return snapshotCart(entry), nil
}

func (s *CartStore) ApplyChange(_ context.Context, params ports.ApplyCartChangeParams) (domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := ports.CartRef{OwnerID: params.OwnerID, StoreID: params.StoreID}
	entry, ok := s.carts[ref]
	if !ok {
		if params.Delta < 0 {
			return domain.CartLine{}, fmt.Errorf("%w: quantity for %s cannot go below zero", domain.ErrInvalidInput, params.ProductID)
		}
		entry = &cartEntry{
			cart: domain.Cart{CartID: uuid.NewString(), OwnerID: params.OwnerID, StoreID: params.StoreID},
		}
		s.carts[ref] = entry
	}
	if entry.cart.Locked {
		return domain.CartLine{}, fmt.Errorf("%w: cart is being submitted", domain.ErrConflict)
	}
	idx := -1
	for i, line := range entry.cart.Lines {
		if line.ProductID == params.ProductID {
			idx = i
			break
		}
	}
	line := domain.CartLine{ProductID: params.ProductID, StoreID: params.StoreID, UnitPrice: params.UnitPrice}
	if idx >= 0 {
		line = entry.cart.Lines[idx]
	}
	next, err := domain.QuantityChange{ProductID: params.ProductID, Delta: params.Delta}.ApplyTo(line.Quantity)
	if err != nil {
		return domain.CartLine{}, err
	}
	line.Quantity = next
	switch {
	case next == 0 && idx >= 0:
		entry.cart.Lines = append(entry.cart.Lines[:idx:idx], entry.cart.Lines[idx+1:]...)
	case next > 0 && idx >= 0:
		entry.cart.Lines[idx] = line
	case next > 0:
		entry.cart.Lines = append(entry.cart.Lines, line)
	}
	entry.cart.UpdatedAt = params.At
	entry.activeAt = params.At
	return line, nil
}

func (s *CartStore) Lock(_ context.Context, ownerID, storeID, holder string, at time.Time) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.carts[ports.CartRef{OwnerID: ownerID, StoreID: storeID}]
	if !ok {
		return domain.Cart{}, fmt.Errorf("%w: cart is empty", domain.ErrInvalidInput)
	}
	if err := entry.cart.Lock(holder, at); err != nil {
		return domain.Cart{}, err
	}
	entry.activeAt = at
	return snapshotCart(entry), nil
}

func (s *CartStore) Unlock(_ context.Context, ownerID, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.carts[ports.CartRef{OwnerID: ownerID, StoreID: storeID}]; ok {
		entry.cart.Unlock()
	}
	return nil
}

func (s *CartStore) Delete(_ context.Context, ownerID, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, ports.CartRef{OwnerID: ownerID, StoreID: storeID})
	return nil
}

func (s *CartStore) ClaimIdle(_ context.Context, cutoff, leaseUntil time.Time, limit int) ([]ports.CartRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.CartRef, 0)
	for ref, entry := range s.carts {
		if entry.activeAt.After(cutoff) {
			continue
		}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		return s.carts[out[i]].activeAt.Before(s.carts[out[j]].activeAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for _, ref := range out {
		s.carts[ref].activeAt = leaseUntil
	}
	return out, nil
}

func snapshotCart(entry *cartEntry) domain.Cart {
	cart := entry.cart
	cart.Lines = append([]domain.CartLine(nil), entry.cart.Lines...)
	return cart
}

type CartChangeLog struct {
	mu      sync.Mutex
	records map[string]ports.CartChangeRecord
}

func NewCartChangeLog() *CartChangeLog {
	return &CartChangeLog{records: make(map[string]ports.CartChangeRecord)}
}

func (l *CartChangeLog) Begin(_ context.Context, rec ports.CartChangeRecord, _ time.Duration) (*ports.CartChangeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.records[rec.ChangeID]; ok {
		return &existing, nil
	}
	rec.State = ports.CartChangePending
	l.records[rec.ChangeID] = rec
	return nil, nil
}

func (l *CartChangeLog) BeginRevert(_ context.Context, changeID, ownerID string, _ time.Duration) (ports.CartChangeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[changeID]
	if !ok {
		tombstone := ports.CartChangeRecord{ChangeID: changeID, OwnerID: ownerID, State: ports.CartChangeReverted, UpdatedAt: time.Now().UTC()}
		l.records[changeID] = tombstone
		return tombstone, nil
	}
	if rec.OwnerID != ownerID {
		return ports.CartChangeRecord{}, fmt.Errorf("%w: change %s belongs to another owner", domain.ErrForbidden, changeID)
	}
	switch rec.State {
	case ports.CartChangeApplied:
		rec.State = ports.CartChangeReverting
		rec.UpdatedAt = time.Now().UTC()
		l.records[changeID] = rec
		return rec, nil
	case ports.CartChangeReverted:
		return rec, nil
	default:
		return ports.CartChangeRecord{}, fmt.Errorf("%w: change %s", domain.ErrChangeInFlight, changeID)
	}
}

func (l *CartChangeLog) Transition(_ context.Context, changeID string, from, to ports.CartChangeState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[changeID]
	if !ok {
		return fmt.Errorf("%w: change %s", domain.ErrNotFound, changeID)
	}
	if rec.State != from {
		return fmt.Errorf("%w: change %s is %s, expected %s", domain.ErrConflict, changeID, rec.State, from)
	}
	rec.State = to
	rec.UpdatedAt = time.Now().UTC()
	l.records[changeID] = rec
	return nil
}

func (l *CartChangeLog) Discard(_ context.Context, changeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[changeID]; ok && rec.State == ports.CartChangePending {
		delete(l.records, changeID)
	}
	return nil
}

var (
	_ ports.CartStore     = (*CartStore)(nil)
	_ ports.CartChangeLog = (*CartChangeLog)(nil)
)
