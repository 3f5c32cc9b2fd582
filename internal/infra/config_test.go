package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"quantbroker/internal/domain"

	"github.com/shopspring/decimal"
)

const sampleConfig = `
app:
  mode: backtest
broker:
  cash: "25000.50"
  check_submit: false
  slippage:
    perc: 0.001
    open: true
  filler:
    kind: bar_perc
    perc: 25
commission:
  default:
    class: stock
    commission: 0.1
  instruments:
    ES:
      class: futures
      commission: 2.5
      perc_abs: true
      margin: 2000
      mult: 50
strategy:
  instruments: [AAPL, ES]
  fast: 5
  slow: 20
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if !cfg.Broker.Cash.Equal(decimal.RequireFromString("25000.50")) {
		t.Errorf("cash = %s", cfg.Broker.Cash)
	}
	if cfg.Broker.CheckSubmit {
		t.Error("check_submit should be overridden to false")
	}
	if !cfg.Broker.ShortCash || !cfg.Broker.Slippage.Match {
		t.Error("defaults should survive for missing keys")
	}
	if cfg.Broker.Filler.Kind != "bar_perc" || cfg.Broker.Filler.Perc != 25 {
		t.Errorf("filler = %+v", cfg.Broker.Filler)
	}
	es := cfg.Commission.Instruments["ES"]
	if es.Class != "futures" || !es.Mult.Equal(decimal.NewFromInt(50)) {
		t.Errorf("ES commission = %+v", es)
	}
	if cfg.Logging.File != "logs/quantbroker.log" {
		t.Errorf("log file default = %q", cfg.Logging.File)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"negative cash", func(c *Config) { c.Broker.Cash = decimal.NewFromInt(-1) }, "broker.cash"},
		{"unknown mode", func(c *Config) { c.App.Mode = "paper" }, "app.mode"},
		{"unknown filler", func(c *Config) { c.Broker.Filler.Kind = "magic" }, "broker.filler.kind"},
		{"both slippages", func(c *Config) {
			c.Broker.Slippage.Perc = decimal.RequireFromString("0.01")
			c.Broker.Slippage.Fixed = decimal.NewFromInt(1)
		}, "broker.slippage"},
		{"bad class", func(c *Config) { c.Commission.Default.Class = "bond" }, "commission.default.class"},
		{"negative margin", func(c *Config) {
			c.Commission.Instruments = map[string]CommissionConfig{"ES": {Margin: decimal.NewFromInt(-5)}}
		}, "commission.instruments.ES.margin"},
		{"fast above slow", func(c *Config) { c.Strategy.Fast = 30 }, "strategy"},
		{"live without gateway", func(c *Config) { c.App.Mode = "live" }, "gateway.rest_url"},
		{"live bad ws", func(c *Config) {
			c.App.Mode = "live"
			c.Gateway.RestURL = "https://gw.local"
			c.Gateway.WSURL = "http://gw.local/ws"
		}, "gateway.ws_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Strategy.Instruments = []string{"AAPL"}
			tt.mut(cfg)

			err := cfg.Validate()
			var ce *domain.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %q, want %q", ce.Field, tt.field)
			}
			if domain.IsRetriable(err) {
				t.Error("config errors must not be retriable")
			}
		})
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := sampleConfig + `
gateway:
  access_key: file-key
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QB_GATEWAY_KEY", "env-key")
	t.Setenv("QB_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Gateway.AccessKey != "env-key" {
		t.Errorf("access key = %q, want env-key", cfg.Gateway.AccessKey)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}
}
