package promclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var DepthUpdatesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "depth_updates_total",
		Help: "depth update events received from the stream",
	},
)

var TradesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "agg_trades_total",
		Help: "aggregated trade events received from the stream",
	},
)

var DecodeFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "decode_failures_total",
		Help: "inbound frames that matched no known message shape",
	},
)

var ResyncsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "resyncs_total",
		Help: "sequence gaps that triggered a full resynchronization",
	},
)

var OrderBookRows = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "order_book_rows",
		Help: "rank-paired rows in the latest top-of-book projection",
	},
)

func StartPromClientServer(addr string, log *zap.SugaredLogger) {
	reg := prometheus.NewRegistry()
	promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	reg.MustRegister(DepthUpdatesTotal)
	reg.MustRegister(TradesTotal)
	reg.MustRegister(DecodeFailuresTotal)
	reg.MustRegister(ResyncsTotal)
	reg.MustRegister(OrderBookRows)
	reg.MustRegister(collectors.NewGoCollector())

	http.Handle("/metrics", promHandler)
	log.Infow("prometheus server listening", "addr", addr)

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Errorw("prometheus server failed", "err", err)
	}
}
