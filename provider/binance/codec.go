package binance

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"

	"github.com/mdstream/binance-bookfeed/domain"
)

// SubscriptionAck is the provider's answer to a control message. A null
// result means the request succeeded.
type SubscriptionAck struct {
	ID     int64   `json:"id"`
	Result *string `json:"result"`
}

type depthUpdateMessage struct {
	Event         string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateID int64      `json:"U"`
	FinalUpdateID int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

type aggTradeMessage struct {
	Event    string `json:"e"`
	Time     int64  `json:"T"`
	Price    string `json:"p"`
	Quantity string `json:"q"`
}

// DecodedFrame is the tagged result of decoding one raw text frame.
// Exactly one field is non-nil.
type DecodedFrame struct {
	Depth *domain.DepthUpdate
	Trade *domain.Trade
	Ack   *SubscriptionAck
}

var ErrUnknownFrame = errors.New("frame matches no known message shape")

// DecodeFrame inspects the structural discriminator once (`id` marks an
// ack, `u` a depth update, `T` an aggregated trade) and unmarshals
// directly into the matching variant.
func DecodeFrame(raw []byte) (*DecodedFrame, error) {
	var probe struct {
		ID    json.RawMessage `json:"id"`
		Final json.RawMessage `json:"u"`
		Time  json.RawMessage `json:"T"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, errors.Wrap(err, "decoding frame")
	}

	switch {
	case probe.ID != nil:
		var ack SubscriptionAck
		if err := json.Unmarshal(raw, &ack); err != nil {
			return nil, errors.Wrap(err, "decoding subscription ack")
		}
		return &DecodedFrame{Ack: &ack}, nil

	case probe.Final != nil:
		var msg depthUpdateMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, errors.Wrap(err, "decoding depth update")
		}
		return &DecodedFrame{Depth: &domain.DepthUpdate{
			FirstUpdateID: msg.FirstUpdateID,
			FinalUpdateID: msg.FinalUpdateID,
			Bids:          parsePriceLevels(msg.Bids),
			Asks:          parsePriceLevels(msg.Asks),
		}}, nil

	case probe.Time != nil:
		var msg aggTradeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, errors.Wrap(err, "decoding aggregated trade")
		}
		return &DecodedFrame{Trade: &domain.Trade{
			Time:     msg.Time,
			Price:    msg.Price,
			Quantity: msg.Quantity,
		}}, nil
	}

	return nil, ErrUnknownFrame
}

// parsePriceLevels converts raw [price, quantity] string pairs into
// orders. Malformed pairs (wrong arity, non-numeric fields) are skipped
// individually. Zero-quantity levels are kept: they are removal markers
// the projection filters later.
func parsePriceLevels(pairs [][]string) []domain.Order {
	orders := make([]domain.Order, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			continue
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			continue
		}
		quantity, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			continue
		}
		orders = append(orders, domain.Order{Price: price, Quantity: quantity})
	}
	return orders
}
