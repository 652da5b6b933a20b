package binance

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mdstream/binance-bookfeed/domain"
)

const (
	methodSubscribe   = "SUBSCRIBE"
	methodUnsubscribe = "UNSUBSCRIBE"
)

// DefaultAckTimeout bounds how long a tracked control request may stay
// pending before its completion resolves with ErrAckTimeout.
const DefaultAckTimeout = 5 * time.Second

// Request ids are fixed per logical request kind, so a new request of the
// same kind replaces the previous pending slot.
const (
	reqIDUnsubscribeDepth int64 = iota
	reqIDSubscribeDepth
	reqIDDefault
)

type controlMessage struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

var (
	ErrSubscriptionRejected = errors.New("subscription request rejected by provider")
	ErrAckTimeout           = errors.New("no acknowledgement received before deadline")
)

type pendingAck struct {
	done  func(error)
	timer *time.Timer
}

// SubscriptionController issues subscribe/unsubscribe control messages and
// correlates their asynchronous acknowledgements by request id through a
// table of one-shot completion handles. A handle that is never correlated
// resolves with ErrAckTimeout once its deadline passes.
type SubscriptionController struct {
	symbol *domain.MarketSymbol

	// AckTimeout is the correlation deadline for tracked requests. Set it
	// before issuing the first request.
	AckTimeout time.Duration

	mu      sync.Mutex
	pending map[int64]*pendingAck
}

func NewSubscriptionController(symbol *domain.MarketSymbol) *SubscriptionController {
	return &SubscriptionController{
		symbol:     symbol,
		AckTimeout: DefaultAckTimeout,
		pending:    make(map[int64]*pendingAck),
	}
}

// SubscribeDepth sends a depth SUBSCRIBE and registers done for the
// correlated acknowledgement.
func (sc *SubscriptionController) SubscribeDepth(stream domain.DuplexStream, done func(error)) error {
	return sc.send(stream, methodSubscribe, domain.StreamDepth, reqIDSubscribeDepth, done)
}

// UnsubscribeDepth sends a depth UNSUBSCRIBE and registers done for the
// correlated acknowledgement.
func (sc *SubscriptionController) UnsubscribeDepth(stream domain.DuplexStream, done func(error)) error {
	return sc.send(stream, methodUnsubscribe, domain.StreamDepth, reqIDUnsubscribeDepth, done)
}

// SubscribeAggTrade is fire-and-forget: the provider acks it, but nothing
// downstream depends on the outcome.
func (sc *SubscriptionController) SubscribeAggTrade(stream domain.DuplexStream) error {
	return sc.send(stream, methodSubscribe, domain.StreamAggTrade, reqIDDefault, nil)
}

func (sc *SubscriptionController) UnsubscribeAggTrade(stream domain.DuplexStream) error {
	return sc.send(stream, methodUnsubscribe, domain.StreamAggTrade, reqIDDefault, nil)
}

func (sc *SubscriptionController) send(
	stream domain.DuplexStream,
	method string,
	name domain.StreamName,
	id int64,
	done func(error),
) error {
	var entry *pendingAck
	if done != nil {
		entry = &pendingAck{done: done}
		entry.timer = time.AfterFunc(sc.AckTimeout, func() { sc.expire(id, entry) })

		sc.mu.Lock()
		if prev, ok := sc.pending[id]; ok {
			prev.timer.Stop()
		}
		sc.pending[id] = entry
		sc.mu.Unlock()
	}

	msg := controlMessage{
		Method: method,
		Params: []string{sc.symbol.Topic(name)},
		ID:     id,
	}
	if err := stream.SendJSON(msg); err != nil {
		if entry != nil {
			sc.remove(id, entry)
		}
		return errors.Wrapf(err, "sending %s for %s", method, name)
	}
	return nil
}

// remove drops entry from the pending table if it still owns the slot.
func (sc *SubscriptionController) remove(id int64, entry *pendingAck) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if cur, ok := sc.pending[id]; ok && cur == entry {
		delete(sc.pending, id)
		cur.timer.Stop()
	}
}

// expire resolves an uncorrelated handle once its deadline passes. A handle
// replaced or fulfilled in the meantime is left alone.
func (sc *SubscriptionController) expire(id int64, entry *pendingAck) {
	sc.mu.Lock()
	cur, ok := sc.pending[id]
	if !ok || cur != entry {
		sc.mu.Unlock()
		return
	}
	delete(sc.pending, id)
	sc.mu.Unlock()

	entry.done(errors.Wrapf(ErrAckTimeout, "request id %d", id))
}

// HandleAck resolves the pending completion for the ack's request id. Per
// provider convention a null result means success and anything else is a
// rejection. Acks with no pending request are ignored.
func (sc *SubscriptionController) HandleAck(ack *SubscriptionAck) {
	sc.mu.Lock()
	entry, ok := sc.pending[ack.ID]
	if ok {
		delete(sc.pending, ack.ID)
		entry.timer.Stop()
	}
	sc.mu.Unlock()

	if !ok {
		return
	}

	if ack.Result != nil {
		entry.done(errors.Wrapf(ErrSubscriptionRejected, "result=%s", *ack.Result))
		return
	}
	entry.done(nil)
}
