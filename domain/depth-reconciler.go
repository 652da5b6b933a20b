package domain

import (
	"github.com/gammazero/deque"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// DepthWindowSize bounds the retained window of accepted update batches.
	DepthWindowSize = 10
	// TopOfBookDepth is the maximum number of rank-paired rows per side in
	// a projection.
	TopOfBookDepth = 14
)

type SyncState string

const (
	StateUninitialized      SyncState = "uninitialized"
	StateAwaitingFirstEvent SyncState = "awaiting_first_event"
	StateSynced             SyncState = "synced"
	StateResyncing          SyncState = "resyncing"
)

// DepthReconciler reconciles a fetched depth snapshot with the diff-depth
// stream. It admits only updates that are contiguous continuations of the
// last applied update id, detects sequence gaps and signals when a full
// resynchronization is required.
//
// All methods must be called from a single goroutine.
type DepthReconciler struct {
	state        SyncState
	lastUpdateID int64
	window       deque.Deque[*DepthUpdate]

	onRecords func([]OrderBookRecord)
	onResync  func()

	StaleCount int
	GapCount   int

	log *zap.SugaredLogger
}

func NewDepthReconciler(log *zap.SugaredLogger) *DepthReconciler {
	return &DepthReconciler{
		state: StateUninitialized,
		log:   log,
	}
}

// OnRecords registers the sink receiving recomputed top-of-book
// projections after every accepted update.
func (r *DepthReconciler) OnRecords(fn func([]OrderBookRecord)) {
	r.onRecords = fn
}

// OnResyncRequired registers the hook invoked once per detected gap.
func (r *DepthReconciler) OnResyncRequired(fn func()) {
	r.onResync = fn
}

func (r *DepthReconciler) State() SyncState {
	return r.state
}

func (r *DepthReconciler) WindowLen() int {
	return r.window.Len()
}

// LastUpdateID reports the last applied update id. ok is false before the
// first snapshot is accepted and while a resync is in progress.
func (r *DepthReconciler) LastUpdateID() (int64, bool) {
	if r.state == StateAwaitingFirstEvent || r.state == StateSynced {
		return r.lastUpdateID, true
	}
	return 0, false
}

// ApplySnapshot installs a new baseline. Valid only before the first
// snapshot and during a resync.
func (r *DepthReconciler) ApplySnapshot(snapshot *DepthSnapshot) error {
	if r.state != StateUninitialized && r.state != StateResyncing {
		return errors.Errorf("snapshot is not applicable in state %s", r.state)
	}

	r.lastUpdateID = snapshot.LastUpdateID
	r.window.Clear()
	r.state = StateAwaitingFirstEvent
	return nil
}

// ApplyUpdate runs admission control for one update batch:
//
//   - no applicable baseline: dropped
//   - u <= lastUpdateID: stale, dropped silently
//   - awaiting first event and U <= lastUpdateID+1 <= u: accepted
//   - synced and U == lastUpdateID+1: accepted as contiguous continuation
//   - anything else: gap; the update is dropped and a resync is signalled
func (r *DepthReconciler) ApplyUpdate(update *DepthUpdate) {
	switch err := r.admit(update); {
	case err == nil:

	case errors.Is(err, ErrUpdateIsOutdated):
		r.StaleCount++
		return

	case errors.Is(err, ErrUpdateOutOfSequence):
		r.GapCount++
		r.log.Warnw("sequence gap detected",
			"last_update_id", r.lastUpdateID,
			"first_update_id", update.FirstUpdateID,
			"final_update_id", update.FinalUpdateID)
		r.state = StateResyncing
		if r.onResync != nil {
			r.onResync()
		}
		return

	default:
		r.log.Debugw("dropping depth update",
			"final_update_id", update.FinalUpdateID, "err", err)
		return
	}

	if r.state == StateAwaitingFirstEvent {
		r.state = StateSynced
	}
	r.lastUpdateID = update.FinalUpdateID
	r.window.PushBack(update)
	for r.window.Len() > DepthWindowSize {
		r.window.PopFront()
	}

	if r.onRecords != nil {
		r.onRecords(r.Project())
	}
}

// admit classifies one update batch against the current state.
func (r *DepthReconciler) admit(update *DepthUpdate) error {
	if r.state == StateUninitialized || r.state == StateResyncing {
		return ErrNoSnapshot
	}
	if update.FinalUpdateID <= r.lastUpdateID {
		return ErrUpdateIsOutdated
	}

	switch r.state {
	case StateAwaitingFirstEvent:
		if update.FirstUpdateID <= r.lastUpdateID+1 &&
			update.FinalUpdateID >= r.lastUpdateID+1 {
			return nil
		}
	case StateSynced:
		if update.FirstUpdateID == r.lastUpdateID+1 {
			return nil
		}
	}
	return ErrUpdateOutOfSequence
}

// Project computes the current top-of-book projection: the window is
// walked newest to oldest, non-zero quantity levels are collected in the
// order the provider supplied them (best to worst, no re-sorting) up to
// TopOfBookDepth per side, and bid[i] is paired with ask[i] by rank.
func (r *DepthReconciler) Project() []OrderBookRecord {
	bids := make([]Order, 0, TopOfBookDepth)
	asks := make([]Order, 0, TopOfBookDepth)

	for i := r.window.Len() - 1; i >= 0; i-- {
		update := r.window.At(i)
		bids = appendLevels(bids, update.Bids)
		asks = appendLevels(asks, update.Asks)
	}

	rows := len(bids)
	if len(asks) > rows {
		rows = len(asks)
	}

	records := make([]OrderBookRecord, rows)
	for i := 0; i < rows; i++ {
		if i < len(bids) {
			bid := bids[i]
			records[i].Bid = &bid
		}
		if i < len(asks) {
			ask := asks[i]
			records[i].Ask = &ask
		}
	}
	return records
}

func appendLevels(dst []Order, src []Order) []Order {
	for _, order := range src {
		if len(dst) == TopOfBookDepth {
			break
		}
		if order.Quantity == 0 {
			continue
		}
		dst = append(dst, order)
	}
	return dst
}
