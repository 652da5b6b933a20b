package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	BaseAsset  string `env:"BASE_ASSET" envDefault:"btc"`
	QuoteAsset string `env:"QUOTE_ASSET" envDefault:"usdt"`

	StreamEndpoint   string `env:"BINANCE_WS_ENDPOINT" envDefault:"wss://stream.binance.com:9443/ws"`
	SnapshotEndpoint string `env:"BINANCE_SNAPSHOT_ENDPOINT" envDefault:"https://www.binance.com/api/v1/depth"`
	SnapshotLimit    int    `env:"SNAPSHOT_LIMIT" envDefault:"1000"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DebugMode   bool   `env:"DEBUG_MODE" envDefault:"false"`
}

// Load reads the process configuration from the environment.
// A .env file is honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parsing environment")
	}

	return cfg, nil
}
