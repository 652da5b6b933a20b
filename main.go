package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdstream/binance-bookfeed/config"
	"github.com/mdstream/binance-bookfeed/domain"
	"github.com/mdstream/binance-bookfeed/helpers"
	"github.com/mdstream/binance-bookfeed/infrastructure/logger"
	promclient "github.com/mdstream/binance-bookfeed/infrastructure/prometheus"
	"github.com/mdstream/binance-bookfeed/provider/binance"
	"github.com/mdstream/binance-bookfeed/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %s\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	symbol, err := domain.NewMarketSymbol(cfg.BaseAsset, cfg.QuoteAsset)
	if err != nil {
		log.Fatalw("invalid market symbol", "err", err)
	}

	depthStream := binance.NewStreamClient(
		cfg.StreamEndpoint+"/"+symbol.Topic(domain.StreamDepth), log.Named("depth-ws"))
	tradeStream := binance.NewStreamClient(
		cfg.StreamEndpoint+"/"+symbol.Topic(domain.StreamAggTrade), log.Named("trade-ws"))
	snapshotAPI := binance.NewSyncAPI(cfg.SnapshotEndpoint)

	feed := usecase.NewMarketFeedUseCase(
		symbol, depthStream, tradeStream, snapshotAPI, cfg.SnapshotLimit, log.Named("feed"))

	feed.OnOrderBookUpdate(func(records []domain.OrderBookRecord, err error) {
		if err != nil {
			log.Errorw("order book update failed", "err", err)
			return
		}
		if cfg.DebugMode && len(records) > 0 {
			log.Infow("order book", "rows", len(records), "top", helpers.ToJSONString(records[0]))
		}
	})
	feed.OnHistoryUpdate(func(records []domain.HistoryRecord, err error) {
		if err != nil {
			log.Errorw("trade history update failed", "err", err)
			return
		}
		if cfg.DebugMode && len(records) > 0 {
			head := records[0]
			log.Infow("trade", "time", head.Time, "price", head.Price,
				"qty", head.Quantity, "direction", head.Direction)
		}
	})

	go promclient.StartPromClientServer(cfg.MetricsAddr, log.Named("metrics"))

	if err := feed.Start(); err != nil {
		log.Fatalw("failed to start market feed", "symbol", symbol.String(), "err", err)
	}
	log.Infow("market feed started", "symbol", symbol.String())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down")
	feed.Stop()
}
