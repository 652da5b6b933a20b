package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReconciler() *DepthReconciler {
	return NewDepthReconciler(zap.NewNop().Sugar())
}

func TestApplySnapshot(t *testing.T) {
	r := newTestReconciler()
	assert.Equal(t, StateUninitialized, r.State())

	err := r.ApplySnapshot(&DepthSnapshot{LastUpdateID: 100})
	require.NoError(t, err)

	assert.Equal(t, StateAwaitingFirstEvent, r.State())
	id, ok := r.LastUpdateID()
	assert.True(t, ok)
	assert.Equal(t, int64(100), id)
}

func TestApplySnapshot_InvalidWhileSynced(t *testing.T) {
	r := newTestReconciler()
	require.NoError(t, r.ApplySnapshot(&DepthSnapshot{LastUpdateID: 100}))
	r.ApplyUpdate(&DepthUpdate{FirstUpdateID: 101, FinalUpdateID: 105})
	require.Equal(t, StateSynced, r.State())

	err := r.ApplySnapshot(&DepthSnapshot{LastUpdateID: 200})
	assert.Error(t, err)
	assert.Equal(t, StateSynced, r.State())
}

func TestApplyUpdate_FirstEvent(t *testing.T) {
	r := newTestReconciler()
	var emitted [][]OrderBookRecord
	r.OnRecords(func(records []OrderBookRecord) {
		emitted = append(emitted, records)
	})

	require.NoError(t, r.ApplySnapshot(&DepthSnapshot{LastUpdateID: 100}))

	r.ApplyUpdate(&DepthUpdate{
		FirstUpdateID: 101,
		FinalUpdateID: 105,
		Bids:          []Order{{Price: 10.0, Quantity: 1.0}},
		Asks:          []Order{{Price: 10.5, Quantity: 2.0}},
	})

	assert.Equal(t, StateSynced, r.State())
	id, ok := r.LastUpdateID()
	assert.True(t, ok)
	assert.Equal(t, int64(105), id)

	require.Len(t, emitted, 1)
	require.Len(t, emitted[0], 1)
	assert.Equal(t, &Order{Price: 10.0, Quantity: 1.0}, emitted[0][0].Bid)
	assert.Equal(t, &Order{Price: 10.5, Quantity: 2.0}, emitted[0][0].Ask)
}

func TestApplyUpdate_FirstEventOverlapsSnapshot(t *testing.T) {
	r := newTestReconciler()
	require.NoError(t, r.ApplySnapshot(&DepthSnapshot{LastUpdateID: 100}))

	// U <= lastUpdateId+1 <= u holds for a batch straddling the snapshot.
	r.ApplyUpdate(&DepthUpdate{FirstUpdateID: 95, FinalUpdateID: 102})

	assert.Equal(t, StateSynced, r.State())
	id, _ := r.LastUpdateID()
	assert.Equal(t, int64(102), id)
}

func TestApplyUpdate_StaleIsIdempotent(t *testing.T) {
	r := newTestReconciler()
	var emitCount int
	r.OnRecords(func([]OrderBookRecord) { emitCount++ })

	require.NoError(t, r.ApplySnapshot(&DepthSnapshot{LastUpdateID: 100}))

	stale := &DepthUpdate{FirstUpdateID: 90, FinalUpdateID: 99}
	for i := 0; i < 5; i++ {
		r.ApplyUpdate(stale)
	}

	assert.Equal(t, StateAwaitingFirstEvent, r.State())
	assert.Equal(t, 0, r.WindowLen())
	assert.Equal(t, 0, emitCount)
	assert.Equal(t, 5, r.StaleCount)
}

func TestApplyUpdate_GapTriggersResync(t *testing.T) {
	r := newTestReconciler()
	var resyncCount int
	r.OnResyncRequired(func() { resyncCount++ })

	require.NoError(t, r.ApplySnapshot(&DepthSnapshot{LastUpdateID: 100}))
	r.ApplyUpdate(&DepthUpdate{FirstUpdateID: 101, FinalUpdateID: 105})
	require.Equal(t, 1, r.WindowLen())

	// 107 != 106: gap.
	r.ApplyUpdate(&DepthUpdate{FirstUpdateID: 107, FinalUpdateID: 110})

	assert.Equal(t, StateResyncing, r.State())
	assert.Equal(t, 1, resyncCount)
	assert.Equal(t, 1, r.WindowLen(), "gapped update must not be appended")

	_, ok := r.LastUpdateID()
	assert.False(t, ok, "no applied id while resyncing")

	// Updates arriving during the resync are dropped without re-signalling.
	r.ApplyUpdate(&DepthUpdate{FirstUpdateID: 111, FinalUpdateID: 112})
	assert.Equal(t, 1, resyncCount)
	assert.Equal(t, StateResyncing, r.State())
}

func TestApplyUpdate_BeforeSnapshotIsDropped(t *testing.T) {
	r := newTestReconciler()
	var emitCount int
	r.OnRecords(func([]OrderBookRecord) { emitCount++ })

	r.ApplyUpdate(&DepthUpdate{FirstUpdateID: 1, FinalUpdateID: 2})

	assert.Equal(t, StateUninitialized, r.State())
	assert.Equal(t, 0, r.WindowLen())
	assert.Equal(t, 0, emitCount)
}

func TestApplyUpdate_MonotoneLastUpdateID(t *testing.T) {
	r := newTestReconciler()
	require.NoError(t, r.ApplySnapshot(&DepthSnapshot{LastUpdateID: 100}))

	prev := int64(100)
	updates := []*DepthUpdate{
		{FirstUpdateID: 101, FinalUpdateID: 105},
		{FirstUpdateID: 90, FinalUpdateID: 95}, // stale
		{FirstUpdateID: 106, FinalUpdateID: 106},
		{FirstUpdateID: 107, FinalUpdateID: 112},
	}
	for _, u := range updates {
		r.ApplyUpdate(u)
		if id, ok := r.LastUpdateID(); ok {
			assert.GreaterOrEqual(t, id, prev)
			prev = id
		}
	}
	assert.Equal(t, int64(112), prev)
}

func TestWindowEviction(t *testing.T) {
	r := newTestReconciler()
	require.NoError(t, r.ApplySnapshot(&DepthSnapshot{LastUpdateID: 0}))

	for i := int64(1); i <= 15; i++ {
		r.ApplyUpdate(&DepthUpdate{
			FirstUpdateID: i,
			FinalUpdateID: i,
			Bids:          []Order{{Price: float64(i), Quantity: 1}},
		})
	}

	assert.Equal(t, DepthWindowSize, r.WindowLen())

	// Oldest first eviction: the front of the window is update 6.
	records := r.Project()
	// Newest-to-oldest walk puts the latest update's bid at rank 0.
	assert.Equal(t, 15.0, records[0].Bid.Price)
	assert.Equal(t, 6.0, records[len(records)-1].Bid.Price)
}

func TestProject_FiltersZeroQuantityAndCapsDepth(t *testing.T) {
	r := newTestReconciler()
	require.NoError(t, r.ApplySnapshot(&DepthSnapshot{LastUpdateID: 100}))

	bids := make([]Order, 0, 20)
	for i := 0; i < 20; i++ {
		qty := 1.0
		if i%2 == 1 {
			qty = 0 // removal marker
		}
		bids = append(bids, Order{Price: 100 - float64(i), Quantity: qty})
	}
	r.ApplyUpdate(&DepthUpdate{FirstUpdateID: 101, FinalUpdateID: 105, Bids: bids})
	r.ApplyUpdate(&DepthUpdate{
		FirstUpdateID: 106,
		FinalUpdateID: 110,
		Bids: []Order{
			{Price: 101, Quantity: 3},
			{Price: 100.5, Quantity: 0},
		},
	})

	records := r.Project()
	require.NotEmpty(t, records)
	assert.LessOrEqual(t, len(records), TopOfBookDepth)

	// Newest update's levels come first; zero quantities are gone.
	assert.Equal(t, 101.0, records[0].Bid.Price)
	for _, rec := range records {
		if rec.Bid != nil {
			assert.NotZero(t, rec.Bid.Quantity)
		}
	}
}

func TestProject_CapsRowsAtTopOfBookDepth(t *testing.T) {
	r := newTestReconciler()
	require.NoError(t, r.ApplySnapshot(&DepthSnapshot{LastUpdateID: 100}))

	bids := make([]Order, 0, 20)
	asks := make([]Order, 0, 20)
	for i := 0; i < 20; i++ {
		bids = append(bids, Order{Price: 100 - float64(i), Quantity: 1})
		asks = append(asks, Order{Price: 101 + float64(i), Quantity: 1})
	}
	r.ApplyUpdate(&DepthUpdate{FirstUpdateID: 101, FinalUpdateID: 105, Bids: bids, Asks: asks})

	records := r.Project()
	require.Len(t, records, TopOfBookDepth)

	// Both sides are full up to the cap; levels beyond it are cut off.
	last := records[TopOfBookDepth-1]
	require.NotNil(t, last.Bid)
	require.NotNil(t, last.Ask)
	assert.Equal(t, 100-float64(TopOfBookDepth-1), last.Bid.Price)
	assert.Equal(t, 101+float64(TopOfBookDepth-1), last.Ask.Price)
}

func TestProject_RankPairsWithMissingSide(t *testing.T) {
	r := newTestReconciler()
	require.NoError(t, r.ApplySnapshot(&DepthSnapshot{LastUpdateID: 100}))

	r.ApplyUpdate(&DepthUpdate{
		FirstUpdateID: 101,
		FinalUpdateID: 105,
		Bids: []Order{
			{Price: 10, Quantity: 1},
			{Price: 9, Quantity: 1},
			{Price: 8, Quantity: 1},
		},
		Asks: []Order{{Price: 11, Quantity: 2}},
	})

	records := r.Project()
	require.Len(t, records, 3)
	assert.NotNil(t, records[0].Bid)
	assert.NotNil(t, records[0].Ask)
	assert.Nil(t, records[1].Ask)
	assert.Nil(t, records[2].Ask)
	assert.Equal(t, 9.0, records[1].Bid.Price)
}

func TestResyncRecovery(t *testing.T) {
	r := newTestReconciler()
	require.NoError(t, r.ApplySnapshot(&DepthSnapshot{LastUpdateID: 100}))
	r.ApplyUpdate(&DepthUpdate{FirstUpdateID: 101, FinalUpdateID: 105})
	r.ApplyUpdate(&DepthUpdate{FirstUpdateID: 200, FinalUpdateID: 201}) // gap
	require.Equal(t, StateResyncing, r.State())

	// A fresh snapshot recovers the machine and clears the window.
	require.NoError(t, r.ApplySnapshot(&DepthSnapshot{LastUpdateID: 300}))
	assert.Equal(t, StateAwaitingFirstEvent, r.State())
	assert.Equal(t, 0, r.WindowLen())

	r.ApplyUpdate(&DepthUpdate{FirstUpdateID: 301, FinalUpdateID: 302})
	assert.Equal(t, StateSynced, r.State())
}
