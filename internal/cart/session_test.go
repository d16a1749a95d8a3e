package cart

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"pgregory.net/rapid"
)

type failMode int

const (
	failNone failMode = iota
	failLostRequest
	failLostResponse
)

// fakeRemote is a server with a ledger per product and the revert tombstone
// semantics of the real cart service.
type fakeRemote struct {
	mu        sync.Mutex
	available map[string]int
	lines     map[string]int
	applied   map[string]domain.QuantityChange
	reverted  map[string]bool
	reverts   []string
	calls     int
	mode      failMode
	before    func(domain.QuantityChange)
}

func newFakeRemote(stock map[string]int) *fakeRemote {
	available := make(map[string]int, len(stock))
	for k, v := range stock {
		available[k] = v
	}
	return &fakeRemote{
		available: available,
		lines:     make(map[string]int),
		applied:   make(map[string]domain.QuantityChange),
		reverted:  make(map[string]bool),
	}
}

func (r *fakeRemote) ChangeQuantity(_ context.Context, _ string, change domain.QuantityChange) (Confirmation, error) {
	if r.before != nil {
		r.before(change)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.mode == failLostRequest {
		return Confirmation{}, fmt.Errorf("%w: connection reset", domain.ErrNetworkFailure)
	}
	if r.reverted[change.ChangeID] {
		return Confirmation{}, fmt.Errorf("%w: change was reverted", domain.ErrConflict)
	}
	if change.Delta > r.available[change.ProductID] {
		return Confirmation{}, domain.ErrInsufficientStock
	}
	next, err := change.ApplyTo(r.lines[change.ProductID])
	if err != nil {
		return Confirmation{}, err
	}
	r.lines[change.ProductID] = next
	r.available[change.ProductID] -= change.Delta
	r.applied[change.ChangeID] = change
	if r.mode == failLostResponse {
		return Confirmation{}, fmt.Errorf("%w: deadline exceeded", domain.ErrNetworkFailure)
	}
	return Confirmation{ProductID: change.ProductID, Quantity: next, AvailablePacks: r.available[change.ProductID]}, nil
}

func (r *fakeRemote) RevertChange(_ context.Context, changeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reverts = append(r.reverts, changeID)
	if r.reverted[changeID] {
		return nil
	}
	r.reverted[changeID] = true
	if change, ok := r.applied[changeID]; ok {
		r.lines[change.ProductID] -= change.Delta
		r.available[change.ProductID] += change.Delta
	}
	return nil
}

func (r *fakeRemote) setMode(mode failMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
}

func (r *fakeRemote) steal(productID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.available[productID] == 0 {
		return false
	}
	r.available[productID]--
	return true
}

func (r *fakeRemote) line(productID string) (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines[productID], r.available[productID]
}

func newTestSession(remote Remote, stock map[string]int) *Session {
	s := NewSession("store-1", remote, slog.New(slog.NewTextHandler(io.Discard, nil)))
	for productID, available := range stock {
		s.Track(productID, 0, available)
	}
	return s
}

func TestSessionConfirmsAndReconciles(t *testing.T) {
	t.Parallel()
	stock := map[string]int{"p1": 10}
	remote := newFakeRemote(stock)
	s := newTestSession(remote, stock)

	line, err := s.ChangeQuantity(context.Background(), "p1", 4)
	require.NoError(t, err)
	require.Equal(t, Line{ProductID: "p1", Quantity: 4, Available: 6}, line)

	line, err = s.ChangeQuantity(context.Background(), "p1", -4)
	require.NoError(t, err)
	require.Zero(t, line.Quantity)
	require.Empty(t, s.Lines())
}

func TestSessionPrecheckSkipsRemote(t *testing.T) {
	t.Parallel()
	stock := map[string]int{"p1": 3}
	remote := newFakeRemote(stock)
	s := newTestSession(remote, stock)

	_, err := s.ChangeQuantity(context.Background(), "p1", 4)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	_, err = s.ChangeQuantity(context.Background(), "p1", -1)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	require.Zero(t, remote.calls)
}

func TestSessionRollsBackServerRefusal(t *testing.T) {
	t.Parallel()
	stock := map[string]int{"p1": 3}
	remote := newFakeRemote(stock)
	s := newTestSession(remote, stock)
	require.True(t, remote.steal("p1"))
	require.True(t, remote.steal("p1"))

	_, err := s.ChangeQuantity(context.Background(), "p1", 2)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	require.Equal(t, Line{ProductID: "p1", Quantity: 0, Available: 3}, s.Line("p1"))
	require.Empty(t, remote.reverts, "a refused change needs no revert")
}

func TestSessionNetworkFailureRevertsRemotely(t *testing.T) {
	t.Parallel()
	stock := map[string]int{"p1": 10}
	remote := newFakeRemote(stock)
	s := newTestSession(remote, stock)
	_, err := s.ChangeQuantity(context.Background(), "p1", 2)
	require.NoError(t, err)

	remote.setMode(failLostResponse)
	_, err = s.ChangeQuantity(context.Background(), "p1", 5)
	require.ErrorIs(t, err, domain.ErrNetworkFailure)
	require.Len(t, remote.reverts, 1)

	require.Equal(t, 2, s.Line("p1").Quantity)
	qty, available := remote.line("p1")
	require.Equal(t, 2, qty)
	require.Equal(t, 8, available)
}

func TestSessionRollbackKeepsConcurrentChanges(t *testing.T) {
	t.Parallel()
	stock := map[string]int{"p1": 10, "p2": 10}
	remote := newFakeRemote(stock)
	s := newTestSession(remote, stock)
	ctx := context.Background()

	_, err := s.ChangeQuantity(ctx, "p1", 2)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	remote.before = func(change domain.QuantityChange) {
		if change.ProductID == "p1" && change.Delta == 3 {
			close(started)
			<-release
			remote.setMode(failLostRequest)
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.ChangeQuantity(ctx, "p1", 3)
		done <- err
	}()
	<-started
	require.Equal(t, 5, s.Line("p1").Quantity, "the change is visible before confirmation")

	_, err = s.ChangeQuantity(ctx, "p2", 4)
	require.NoError(t, err)
	line, err := s.ChangeQuantity(ctx, "p1", 1)
	require.NoError(t, err)
	require.Equal(t, 6, line.Quantity)
	require.Equal(t, 1, line.Pending)

	close(release)
	require.ErrorIs(t, <-done, domain.ErrNetworkFailure)

	require.Equal(t, Line{ProductID: "p1", Quantity: 3, Available: 7}, s.Line("p1"))
	require.Equal(t, Line{ProductID: "p2", Quantity: 4, Available: 6}, s.Line("p2"))
	qty, available := remote.line("p1")
	require.Equal(t, 3, qty)
	require.Equal(t, 7, available)
}

func TestSessionMatchesServerAfterEveryChange(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		stock := map[string]int{"p1": 8, "p2": 5}
		total := map[string]int{"p1": 8, "p2": 5}
		remote := newFakeRemote(stock)
		s := newTestSession(remote, stock)

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			productID := rapid.SampledFrom([]string{"p1", "p2"}).Draw(rt, "product")
			delta := rapid.IntRange(-4, 6).Filter(func(v int) bool { return v != 0 }).Draw(rt, "delta")
			mode := rapid.SampledFrom([]failMode{failNone, failLostRequest, failLostResponse}).Draw(rt, "mode")
			if rapid.Bool().Draw(rt, "steal") && remote.steal(productID) {
				total[productID]--
			}
			remote.setMode(mode)
			_, _ = s.ChangeQuantity(context.Background(), productID, delta)

			for id, packs := range total {
				local := s.Line(id)
				qty, available := remote.line(id)
				require.Equal(rt, qty, local.Quantity)
				require.GreaterOrEqual(rt, local.Quantity, 0)
				require.LessOrEqual(rt, local.Quantity, packs)
				require.Equal(rt, packs, qty+available)
				require.Zero(rt, local.Pending)
			}
		}
	})
}
