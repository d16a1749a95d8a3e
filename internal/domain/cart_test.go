package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCartTotalIsDerivedFromLines(t *testing.T) {
	t.Parallel()

	cart := Cart{Lines: []CartLine{
		{ProductID: "a", Quantity: 3, UnitPrice: decimal.RequireFromString("1.10")},
		{ProductID: "b", Quantity: 1, UnitPrice: decimal.RequireFromString("0.05")},
	}}
	assert.True(t, cart.Total().Equal(decimal.RequireFromString("3.35")))
	assert.False(t, cart.IsEmpty())
	assert.True(t, Cart{}.Total().IsZero())
}

func TestQuantityChangeInverseRestores(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.IntRange(0, 1000).Draw(t, "start")
		delta := rapid.IntRange(-start, 1000).Filter(func(v int) bool { return v != 0 }).Draw(t, "delta")
		change := QuantityChange{ChangeID: "c", ProductID: "p", Delta: delta}

		after, err := change.ApplyTo(start)
		if err != nil {
			t.Fatalf("apply %d to %d: %v", delta, start, err)
		}
		back, err := change.Inverse().ApplyTo(after)
		if err != nil {
			t.Fatalf("inverse: %v", err)
		}
		if back != start {
			t.Fatalf("inverse did not restore: start=%d back=%d", start, back)
		}
	})
}

func TestQuantityChangeRejectsNegative(t *testing.T) {
	t.Parallel()

	change := QuantityChange{ChangeID: "c", ProductID: "p", Delta: -3}
	got, err := change.ApplyTo(2)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 2, got)
	require.ErrorIs(t, QuantityChange{ChangeID: "c", ProductID: "p"}.Validate(), ErrInvalidInput)
}

func TestStockLevelApplyDeltaNeverClamps(t *testing.T) {
	t.Parallel()

	level := StockLevel{ProductID: "p", StoreID: "s", AvailablePacks: 10}
	next, err := level.ApplyDelta(-3)
	require.NoError(t, err)
	assert.Equal(t, 7, next.AvailablePacks)

	same, err := next.ApplyDelta(-10)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 7, same.AvailablePacks)
}

func TestAllocationPairsAndDiff(t *testing.T) {
	t.Parallel()

	pairs, err := AllocationPairs([]string{"p2", "p1", "p1"}, []string{"s1", " ", "s2"})
	require.NoError(t, err)
	assert.Equal(t, []Allocation{
		{ProductID: "p1", StoreID: "s1"}, {ProductID: "p1", StoreID: "s2"},
		{ProductID: "p2", StoreID: "s1"}, {ProductID: "p2", StoreID: "s2"},
	}, pairs)

	_, err = AllocationPairs(nil, []string{"s1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	added, removed := DiffStores([]string{"s1", "s2"}, []string{"s2", "s3"})
	assert.Equal(t, []string{"s3"}, added)
	assert.Equal(t, []string{"s1"}, removed)

	expanded := ExpandVariants([]string{"p1"}, map[string]Product{"p1": {VariantIDs: []string{"p1-l", "p1-m"}}})
	assert.Equal(t, []string{"p1", "p1-l", "p1-m"}, expanded)
}
