package usecase

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mdstream/binance-bookfeed/domain"
	promclient "github.com/mdstream/binance-bookfeed/infrastructure/prometheus"
	"github.com/mdstream/binance-bookfeed/provider/binance"
)

type OrderBookCallback func(records []domain.OrderBookRecord, err error)
type HistoryCallback func(records []domain.HistoryRecord, err error)

type frameSource int

const (
	sourceDepth frameSource = iota
	sourceTrade
)

type inboundFrame struct {
	source frameSource
	raw    []byte
}

// MarketFeedUseCase wires the transport, codec, depth reconciler and
// history aggregator into one session for a single market symbol.
//
// All decode/apply work for both streams runs on one serialized worker;
// the read loops and snapshot fetches only hand work to it. Consumer
// callbacks are delivered through a configurable dispatcher so a slow
// consumer never stalls ingestion.
type MarketFeedUseCase struct {
	symbol        *domain.MarketSymbol
	snapshotLimit int

	depthStream domain.DuplexStream
	tradeStream domain.DuplexStream
	snapshotAPI domain.SnapshotAPI
	subs        *binance.SubscriptionController

	reconciler *domain.DepthReconciler
	history    *domain.HistoryAggregator

	frames   chan inboundFrame
	commands chan func()
	done     chan struct{}
	dispatch func(func())

	mu          sync.Mutex
	orderBookCb OrderBookCallback
	historyCb   HistoryCallback
	active      bool

	wg  sync.WaitGroup
	log *zap.SugaredLogger
}

type Option func(*MarketFeedUseCase)

// WithDispatcher sets the delivery context for consumer callbacks, e.g. a
// UI main-thread executor. The default invokes callbacks inline on the
// processing worker.
func WithDispatcher(dispatch func(func())) Option {
	return func(uc *MarketFeedUseCase) {
		uc.dispatch = dispatch
	}
}

// WithAckTimeout overrides the correlation deadline for tracked control
// requests. A lost ack resolves as a subscription failure after it.
func WithAckTimeout(d time.Duration) Option {
	return func(uc *MarketFeedUseCase) {
		uc.subs.AckTimeout = d
	}
}

func NewMarketFeedUseCase(
	symbol *domain.MarketSymbol,
	depthStream domain.DuplexStream,
	tradeStream domain.DuplexStream,
	snapshotAPI domain.SnapshotAPI,
	snapshotLimit int,
	log *zap.SugaredLogger,
	opts ...Option,
) *MarketFeedUseCase {
	uc := &MarketFeedUseCase{
		symbol:        symbol,
		snapshotLimit: snapshotLimit,
		depthStream:   depthStream,
		tradeStream:   tradeStream,
		snapshotAPI:   snapshotAPI,
		subs:          binance.NewSubscriptionController(symbol),
		reconciler:    domain.NewDepthReconciler(log.Named("reconciler")),
		history:       domain.NewHistoryAggregator(log.Named("history")),
		frames:        make(chan inboundFrame, 256),
		commands:      make(chan func(), 16),
		done:          make(chan struct{}),
		dispatch:      func(fn func()) { fn() },
		log:           log,
	}
	for _, opt := range opts {
		opt(uc)
	}

	uc.reconciler.OnRecords(uc.emitOrderBook)
	uc.reconciler.OnResyncRequired(uc.resync)
	uc.history.OnRecords(uc.emitHistory)
	return uc
}

// OnOrderBookUpdate registers the order book subscription point. The
// callback receives either the latest projection or a typed failure.
func (uc *MarketFeedUseCase) OnOrderBookUpdate(cb OrderBookCallback) {
	uc.mu.Lock()
	uc.orderBookCb = cb
	uc.mu.Unlock()
}

// OnHistoryUpdate registers the trade history subscription point.
func (uc *MarketFeedUseCase) OnHistoryUpdate(cb HistoryCallback) {
	uc.mu.Lock()
	uc.historyCb = cb
	uc.mu.Unlock()
}

// Start opens both streams, subscribes, kicks off the initial snapshot
// fetch and launches the processing worker. Depth updates arriving before
// the snapshot lands are dropped by the reconciler's admission control.
// A failed Start tears down whatever it had already launched.
func (uc *MarketFeedUseCase) Start() error {
	if err := uc.depthStream.Connect(); err != nil {
		return domain.NewFeedError(domain.FailureTransport, err)
	}
	if err := uc.tradeStream.Connect(); err != nil {
		uc.depthStream.Close()
		return domain.NewFeedError(domain.FailureTransport, err)
	}

	uc.mu.Lock()
	uc.active = true
	uc.mu.Unlock()

	uc.wg.Add(3)
	go uc.pump(uc.depthStream, sourceDepth)
	go uc.pump(uc.tradeStream, sourceTrade)
	go uc.worker()

	if err := uc.subs.SubscribeDepth(uc.depthStream, func(err error) {
		if err != nil {
			uc.emitOrderBookFailure(domain.NewFeedError(domain.FailureSubscription, err))
		}
	}); err != nil {
		uc.Stop()
		return domain.NewFeedError(domain.FailureSubscription, err)
	}
	if err := uc.subs.SubscribeAggTrade(uc.tradeStream); err != nil {
		uc.Stop()
		return domain.NewFeedError(domain.FailureSubscription, err)
	}

	go uc.fetchAndApplySnapshot()
	return nil
}

// Stop tears the session down. Stream teardown is the only cancellation
// mechanism: in-flight snapshot fetches are not cancelled, their results
// are dropped on arrival.
func (uc *MarketFeedUseCase) Stop() {
	uc.mu.Lock()
	if !uc.active {
		uc.mu.Unlock()
		return
	}
	uc.active = false
	uc.mu.Unlock()

	close(uc.done)
	uc.depthStream.Close()
	uc.tradeStream.Close()
	uc.wg.Wait()
}

func (uc *MarketFeedUseCase) isActive() bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.active
}

// pump forwards one stream's frames and failures to the worker.
func (uc *MarketFeedUseCase) pump(stream domain.DuplexStream, source frameSource) {
	defer uc.wg.Done()

	for {
		select {
		case <-uc.done:
			return

		case raw, ok := <-stream.Frames():
			if !ok {
				return
			}
			select {
			case uc.frames <- inboundFrame{source: source, raw: raw}:
			case <-uc.done:
				return
			}

		case err := <-stream.Errs():
			feedErr := domain.NewFeedError(domain.FailureTransport, err)
			if source == sourceDepth {
				uc.emitOrderBookFailure(feedErr)
			} else {
				uc.emitHistoryFailure(feedErr)
			}
		}
	}
}

// worker is the single serialized processing pipeline. All reconciler and
// aggregator state is confined to it.
func (uc *MarketFeedUseCase) worker() {
	defer uc.wg.Done()

	for {
		select {
		case <-uc.done:
			return
		case frame := <-uc.frames:
			uc.handleFrame(frame)
		case cmd := <-uc.commands:
			cmd()
		}
	}
}

// enqueue hands a state mutation to the worker.
func (uc *MarketFeedUseCase) enqueue(cmd func()) {
	select {
	case uc.commands <- cmd:
	case <-uc.done:
	}
}

func (uc *MarketFeedUseCase) handleFrame(frame inboundFrame) {
	decoded, err := binance.DecodeFrame(frame.raw)
	if err != nil {
		promclient.DecodeFailuresTotal.Inc()
		uc.log.Debugw("dropping undecodable frame", "err", err)
		return
	}

	switch {
	case decoded.Ack != nil:
		uc.subs.HandleAck(decoded.Ack)
	case decoded.Depth != nil:
		promclient.DepthUpdatesTotal.Inc()
		uc.reconciler.ApplyUpdate(decoded.Depth)
	case decoded.Trade != nil:
		promclient.TradesTotal.Inc()
		uc.history.ApplyTrade(decoded.Trade)
	}
}

// fetchAndApplySnapshot fetches a baseline off-worker and applies it on
// the worker. A snapshot landing after teardown is dropped.
func (uc *MarketFeedUseCase) fetchAndApplySnapshot(onApplied ...func()) {
	snapshot, err := uc.snapshotAPI.DepthSnapshot(uc.symbol, uc.snapshotLimit)
	if err != nil {
		uc.emitOrderBookFailure(domain.NewFeedError(domain.FailureSnapshotFetch, err))
		return
	}

	if !uc.isActive() {
		uc.log.Debugw("dropping late depth snapshot",
			"last_update_id", snapshot.LastUpdateID)
		return
	}

	uc.enqueue(func() {
		if err := uc.reconciler.ApplySnapshot(snapshot); err != nil {
			uc.log.Warnw("snapshot not applicable", "err", err)
			return
		}
		uc.log.Infow("depth snapshot applied",
			"symbol", uc.symbol.String(),
			"last_update_id", snapshot.LastUpdateID)
		for _, fn := range onApplied {
			fn()
		}
	})
}

// resync runs the full recovery procedure after a sequence gap:
// unsubscribe from the depth stream, fetch a fresh snapshot, apply it and
// resubscribe. One attempt per gap; failures along the way surface as
// typed errors and leave the reconciler in the resyncing state until a
// later event or a manual restart.
func (uc *MarketFeedUseCase) resync() {
	promclient.ResyncsTotal.Inc()
	uc.log.Warnw("sequence gap detected, resynchronizing", "symbol", uc.symbol.String())

	err := uc.subs.UnsubscribeDepth(uc.depthStream, func(err error) {
		if err != nil {
			uc.emitOrderBookFailure(domain.NewFeedError(domain.FailureSubscription, err))
			return
		}
		go uc.fetchAndApplySnapshot(uc.resubscribeDepth)
	})
	if err != nil {
		uc.emitOrderBookFailure(domain.NewFeedError(domain.FailureSubscription, err))
	}
}

func (uc *MarketFeedUseCase) resubscribeDepth() {
	err := uc.subs.SubscribeDepth(uc.depthStream, func(err error) {
		if err != nil {
			uc.emitOrderBookFailure(domain.NewFeedError(domain.FailureSubscription, err))
		}
	})
	if err != nil {
		uc.emitOrderBookFailure(domain.NewFeedError(domain.FailureSubscription, err))
	}
}

func (uc *MarketFeedUseCase) emitOrderBook(records []domain.OrderBookRecord) {
	promclient.OrderBookRows.Set(float64(len(records)))

	uc.mu.Lock()
	cb := uc.orderBookCb
	uc.mu.Unlock()
	if cb == nil {
		return
	}
	uc.dispatch(func() { cb(records, nil) })
}

func (uc *MarketFeedUseCase) emitOrderBookFailure(err *domain.FeedError) {
	uc.mu.Lock()
	cb := uc.orderBookCb
	uc.mu.Unlock()
	if cb == nil {
		return
	}
	uc.dispatch(func() { cb(nil, err) })
}

func (uc *MarketFeedUseCase) emitHistory(records []domain.HistoryRecord) {
	uc.mu.Lock()
	cb := uc.historyCb
	uc.mu.Unlock()
	if cb == nil {
		return
	}
	uc.dispatch(func() { cb(records, nil) })
}

func (uc *MarketFeedUseCase) emitHistoryFailure(err *domain.FeedError) {
	uc.mu.Lock()
	cb := uc.historyCb
	uc.mu.Unlock()
	if cb == nil {
		return
	}
	uc.dispatch(func() { cb(nil, err) })
}
