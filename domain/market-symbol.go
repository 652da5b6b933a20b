package domain

import (
	"fmt"
	"strings"
)

// StreamName identifies one of the provider's raw event streams.
type StreamName string

const (
	StreamDepth    StreamName = "depth"
	StreamAggTrade StreamName = "aggTrade"
)

type MarketSymbol struct {
	BaseAsset  string
	QuoteAsset string
}

func NewMarketSymbol(base string, quote string) (*MarketSymbol, error) {
	if base == "" || quote == "" {
		return nil, fmt.Errorf("base and quote must not be empty")
	}
	if strings.EqualFold(base, quote) {
		return nil, fmt.Errorf("base and quote must be different")
	}
	return &MarketSymbol{
		BaseAsset:  strings.ToLower(base),
		QuoteAsset: strings.ToLower(quote),
	}, nil
}

func (ms *MarketSymbol) Join(separator string) string {
	return fmt.Sprintf("%s%s%s", ms.BaseAsset, separator, ms.QuoteAsset)
}

func (ms *MarketSymbol) String() string {
	return fmt.Sprintf("%s_%s", ms.BaseAsset, ms.QuoteAsset)
}

// Upper is the form the snapshot endpoint expects, e.g. BTCUSDT.
func (ms *MarketSymbol) Upper() string {
	return strings.ToUpper(ms.Join(""))
}

// Topic is the stream subscription topic, e.g. btcusdt@depth.
func (ms *MarketSymbol) Topic(stream StreamName) string {
	return fmt.Sprintf("%s@%s", ms.Join(""), stream)
}
