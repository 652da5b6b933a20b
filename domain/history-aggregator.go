package domain

import (
	"strconv"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mdstream/binance-bookfeed/helpers"
)

// HistoryDepth bounds the retained trade history.
const HistoryDepth = 14

// HistoryAggregator folds aggregated trades into a bounded
// most-recent-first history. Direction convention: a trade at or above the
// previous head price classifies as an increase, below it as a decrease;
// the first trade of a session classifies as an increase.
//
// All methods must be called from a single goroutine.
type HistoryAggregator struct {
	records   deque.Deque[HistoryRecord]
	headPrice float64
	hasHead   bool

	onRecords func([]HistoryRecord)

	log *zap.SugaredLogger
}

func NewHistoryAggregator(log *zap.SugaredLogger) *HistoryAggregator {
	return &HistoryAggregator{log: log}
}

// OnRecords registers the sink receiving the full history after every
// accepted trade.
func (h *HistoryAggregator) OnRecords(fn func([]HistoryRecord)) {
	h.onRecords = fn
}

// ApplyTrade appends one trade to the history. Trades with an unparseable
// price or quantity are dropped.
func (h *HistoryAggregator) ApplyTrade(trade *Trade) {
	price, err := strconv.ParseFloat(trade.Price, 64)
	if err != nil {
		h.log.Debugw("dropping trade with invalid price", "price", trade.Price)
		return
	}
	if _, err := strconv.ParseFloat(trade.Quantity, 64); err != nil {
		h.log.Debugw("dropping trade with invalid quantity", "quantity", trade.Quantity)
		return
	}

	direction := PriceIncrease
	if h.hasHead && price < h.headPrice {
		direction = PriceDecrease
	}

	record := HistoryRecord{
		ID:        uuid.NewString(),
		Time:      helpers.FormatMillisTime(trade.Time),
		Price:     trade.Price,
		Quantity:  trade.Quantity,
		Direction: direction,
	}

	h.records.PushFront(record)
	for h.records.Len() > HistoryDepth {
		h.records.PopBack()
	}

	h.headPrice = price
	h.hasHead = true

	if h.onRecords != nil {
		h.onRecords(h.Records())
	}
}

// Records returns the history, most recent first.
func (h *HistoryAggregator) Records() []HistoryRecord {
	out := make([]HistoryRecord, h.records.Len())
	for i := 0; i < h.records.Len(); i++ {
		out[i] = h.records.At(i)
	}
	return out
}
