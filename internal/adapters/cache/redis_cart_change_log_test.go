package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

func TestRedisCartChangeLogLifecycle(t *testing.T) {
	t.Parallel()
	mr, client := newTestClient(t)
	log := NewRedisCartChangeLog(client)
	ctx := context.Background()
	rec := ports.CartChangeRecord{ChangeID: "c1", OwnerID: "u1", StoreID: "s1", ProductID: "p1", Delta: 3}

	existing, err := log.Begin(ctx, rec, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, existing)
	assert.True(t, mr.Exists(changeKey("c1")))

	existing, err = log.Begin(ctx, rec, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, ports.CartChangePending, existing.State)
	assert.Equal(t, 3, existing.Delta)
	assert.Equal(t, "p1", existing.ProductID)

	_, err = log.BeginRevert(ctx, "c1", "u1", time.Hour)
	require.ErrorIs(t, err, domain.ErrChangeInFlight)

	require.NoError(t, log.Transition(ctx, "c1", ports.CartChangePending, ports.CartChangeApplied))
	err = log.Transition(ctx, "c1", ports.CartChangePending, ports.CartChangeApplied)
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = log.BeginRevert(ctx, "c1", "u2", time.Hour)
	require.ErrorIs(t, err, domain.ErrForbidden)

	reverting, err := log.BeginRevert(ctx, "c1", "u1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ports.CartChangeReverting, reverting.State)
	assert.Equal(t, 3, reverting.Delta)

	require.NoError(t, log.Transition(ctx, "c1", ports.CartChangeReverting, ports.CartChangeReverted))
	again, err := log.BeginRevert(ctx, "c1", "u1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ports.CartChangeReverted, again.State)

	err = log.Transition(ctx, "missing", ports.CartChangePending, ports.CartChangeApplied)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisCartChangeLogTombstoneAndDiscard(t *testing.T) {
	t.Parallel()
	mr, client := newTestClient(t)
	log := NewRedisCartChangeLog(client)
	ctx := context.Background()

	tombstone, err := log.BeginRevert(ctx, "late", "u1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ports.CartChangeReverted, tombstone.State)
	assert.Zero(t, tombstone.Delta)

	existing, err := log.Begin(ctx, ports.CartChangeRecord{ChangeID: "late", OwnerID: "u1", ProductID: "p1", Delta: 2}, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, ports.CartChangeReverted, existing.State)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(changeKey("late")))

	_, err = log.Begin(ctx, ports.CartChangeRecord{ChangeID: "c2", OwnerID: "u1", ProductID: "p1", Delta: 1}, time.Hour)
	require.NoError(t, err)
	require.NoError(t, log.Discard(ctx, "c2"))
	assert.False(t, mr.Exists(changeKey("c2")))

	_, err = log.Begin(ctx, ports.CartChangeRecord{ChangeID: "c3", OwnerID: "u1", ProductID: "p1", Delta: 1}, time.Hour)
	require.NoError(t, err)
	require.NoError(t, log.Transition(ctx, "c3", ports.CartChangePending, ports.CartChangeApplied))
	require.NoError(t, log.Discard(ctx, "c3"))
	assert.True(t, mr.Exists(changeKey("c3")))
}
