// Package cart holds the client side of the cart: a session that applies
// quantity changes optimistically and rolls each one back by its exact
// inverse when the server refuses it.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
)

// Confirmation is the server's view of a line after it applied a change.
type Confirmation struct {
	ProductID      string
	Quantity       int
	AvailablePacks int
}

// Remote confirms cart changes against the server-side ledger.
type Remote interface {
	ChangeQuantity(ctx context.Context, storeID string, change domain.QuantityChange) (Confirmation, error)
	RevertChange(ctx context.Context, changeID string) error
}

type Line struct {
	ProductID string
	Quantity  int
	Available int
	Pending   int
}

// Session is one user's cart for one store. Local state is either the
// server's state or away from it by exactly the deltas still in flight.
type Session struct {
	storeID string
	remote  Remote
	logger  *slog.Logger
	newID   func() string

	mu        sync.Mutex
	lines     map[string]int
	available map[string]int
	inFlight  map[string]int
}

func NewSession(storeID string, remote Remote, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		storeID:   storeID,
		remote:    remote,
		logger:    logger,
		newID:     uuid.NewString,
		lines:     make(map[string]int),
		available: make(map[string]int),
		inFlight:  make(map[string]int),
	}
}

// Track records what the server last reported for a product, typically from
// the orderable products listing.
func (s *Session) Track(productID string, quantity, available int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconcile(productID, quantity, available)
}

// ChangeQuantity applies delta locally at once and confirms it remotely.
// A refused change is undone by its inverse, so concurrent changes to the
// same or other lines are preserved.
func (s *Session) ChangeQuantity(ctx context.Context, productID string, delta int) (Line, error) {
	change := domain.QuantityChange{ChangeID: s.newID(), ProductID: productID, Delta: delta}
	if err := change.Validate(); err != nil {
		return Line{}, err
	}
	if err := s.apply(change); err != nil {
		return s.Line(productID), err
	}

	confirmed := false
	defer func() {
		if !confirmed {
			s.undo(change)
		}
	}()

	conf, err := s.remote.ChangeQuantity(ctx, s.storeID, change)
	if err != nil {
		if errors.Is(err, domain.ErrNetworkFailure) {
			s.revertRemote(ctx, change.ChangeID)
		}
		return Line{}, err
	}
	confirmed = true
	s.confirm(change, conf)
	return s.Line(productID), nil
}

func (s *Session) apply(change domain.QuantityChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := change.ApplyTo(s.lines[change.ProductID])
	if err != nil {
		return err
	}
	if change.Delta > s.available[change.ProductID] {
		return fmt.Errorf("%w: %d packs of %s requested, %d available",
			domain.ErrInsufficientStock, change.Delta, change.ProductID, s.available[change.ProductID])
	}
	s.lines[change.ProductID] = next
	s.available[change.ProductID] -= change.Delta
	s.inFlight[change.ProductID]++
	return nil
}

func (s *Session) undo(change domain.QuantityChange) {
	inverse := change.Inverse()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[inverse.ProductID] += inverse.Delta
	s.available[inverse.ProductID] -= inverse.Delta
	s.settle(inverse.ProductID)
}

func (s *Session) confirm(change domain.QuantityChange, conf Confirmation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle(change.ProductID)
	// With other changes to this line still in flight the server's answer is
	// already stale for the local view.
	if s.inFlight[change.ProductID] == 0 {
		s.reconcile(change.ProductID, conf.Quantity, conf.AvailablePacks)
	}
}

func (s *Session) settle(productID string) {
	s.inFlight[productID]--
	if s.inFlight[productID] <= 0 {
		delete(s.inFlight, productID)
	}
}

func (s *Session) reconcile(productID string, quantity, available int) {
	if quantity > 0 {
		s.lines[productID] = quantity
	} else {
		delete(s.lines, productID)
	}
	s.available[productID] = available
}

// revertRemote asks the server to undo a change whose outcome is unknown. It
// runs detached from ctx because the caller may already have given up.
func (s *Session) revertRemote(ctx context.Context, changeID string) {
	if err := s.remote.RevertChange(context.WithoutCancel(ctx), changeID); err != nil {
		s.logger.WarnContext(ctx, "cart change revert failed",
			"module", "cart",
			"layer", "session",
			"operation", "revert_change",
			"outcome", "failure",
			"change_id", changeID,
			"store_id", s.storeID,
			"error", err,
		)
	}
}

func (s *Session) Line(productID string) Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Line{
		ProductID: productID,
		Quantity:  s.lines[productID],
		Available: s.available[productID],
		Pending:   s.inFlight[productID],
	}
}

// Lines returns the non-empty lines ordered by product id.
func (s *Session) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Line, 0, len(s.lines))
	for productID, qty := range s.lines {
		if qty == 0 {
			continue
		}
		out = append(out, Line{
			ProductID: productID,
			Quantity:  qty,
			Available: s.available[productID],
			Pending:   s.inFlight[productID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (s *Session) StoreID() string {
	return s.storeID
}
