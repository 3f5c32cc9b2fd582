package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"quantbroker/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// CommissionConfig describes the commission policy of one instrument.
type CommissionConfig struct {
	Class        string          `yaml:"class"` // generic, stock, futures, forex, crypto
	Kind         string          `yaml:"kind"`  // percentage, fixed
	Commission   decimal.Decimal `yaml:"commission"`
	PercAbs      bool            `yaml:"perc_abs"`
	Margin       decimal.Decimal `yaml:"margin"`
	Mult         decimal.Decimal `yaml:"mult"`
	Leverage     decimal.Decimal `yaml:"leverage"`
	Minimum      decimal.Decimal `yaml:"minimum"`
	Interest     decimal.Decimal `yaml:"interest"`
	InterestLong bool            `yaml:"interest_long"`
	StockLike    *bool           `yaml:"stocklike"`
}

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name string `yaml:"name"`
		Mode string `yaml:"mode"` // backtest, live
	} `yaml:"app"`

	Broker struct {
		Cash         decimal.Decimal `yaml:"cash"`
		CheckSubmit  bool            `yaml:"check_submit"`
		CheatOnOpen  bool            `yaml:"cheat_on_open"`
		CheatOnClose bool            `yaml:"cheat_on_close"`
		Int2PnL      bool            `yaml:"int2pnl"`
		ShortCash    bool            `yaml:"short_cash"`
		FundMode     bool            `yaml:"fund_mode"`
		FundStartVal decimal.Decimal `yaml:"fund_start_val"`

		Slippage struct {
			Perc  decimal.Decimal `yaml:"perc"`
			Fixed decimal.Decimal `yaml:"fixed"`
			Open  bool            `yaml:"open"`
			Limit bool            `yaml:"limit"`
			Match bool            `yaml:"match"`
			Out   bool            `yaml:"out"`
		} `yaml:"slippage"`

		Filler struct {
			Kind   string  `yaml:"kind"` // none, fixed_size, bar_perc, point_perc
			Size   float64 `yaml:"size"`
			Perc   float64 `yaml:"perc"`
			MinMov float64 `yaml:"min_mov"`
		} `yaml:"filler"`
	} `yaml:"broker"`

	Commission struct {
		Default     CommissionConfig            `yaml:"default"`
		Instruments map[string]CommissionConfig `yaml:"instruments"`
	} `yaml:"commission"`

	Strategy struct {
		Instruments []string        `yaml:"instruments"`
		Fast        int             `yaml:"fast"`
		Slow        int             `yaml:"slow"`
		Size        decimal.Decimal `yaml:"size"`
	} `yaml:"strategy"`

	Live struct {
		Venue             string `yaml:"venue"`
		Workers           int    `yaml:"workers"`
		QueueSize         int    `yaml:"queue_size"`
		ConnectTimeoutSec int    `yaml:"connect_timeout_sec"`
		RequestTimeoutSec int    `yaml:"request_timeout_sec"`
		ReconnectBaseMS   int    `yaml:"reconnect_base_ms"`
		ReconnectMaxMS    int    `yaml:"reconnect_max_ms"`
		MaxReconnects     int    `yaml:"max_reconnects"`
		HeartbeatMS       int    `yaml:"heartbeat_ms"`
		PollIntervalMS    int    `yaml:"poll_interval_ms"`
	} `yaml:"live"`

	Gateway struct {
		RestURL    string `yaml:"rest_url"`
		WSURL      string `yaml:"ws_url"`
		AccessKey  string `yaml:"access_key"`
		SecretKey  string `yaml:"secret_key"`
		Passphrase string `yaml:"passphrase"`
	} `yaml:"gateway"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// DefaultConfig returns the values used for keys missing from the file.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "quantbroker"
	cfg.App.Mode = "backtest"

	cfg.Broker.Cash = decimal.NewFromInt(10000)
	cfg.Broker.CheckSubmit = true
	cfg.Broker.Int2PnL = true
	cfg.Broker.ShortCash = true
	cfg.Broker.FundStartVal = decimal.NewFromInt(100)
	cfg.Broker.Slippage.Limit = true
	cfg.Broker.Slippage.Match = true

	cfg.Commission.Default.Class = "stock"

	cfg.Strategy.Fast = 10
	cfg.Strategy.Slow = 30
	cfg.Strategy.Size = decimal.NewFromInt(1)

	cfg.Live.Venue = "crypto"
	cfg.Live.PollIntervalMS = 1000

	cfg.Storage.Path = "data/quantbroker.db"
	cfg.Kafka.Topic = "quantbroker.orders"
	cfg.Logging.Level = "info"
	cfg.Logging.File = "logs/quantbroker.log"
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults, applies environment
// overrides and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// 보안 우선 - 환경 변수 오버라이드 지원
	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var (
	modes       = []string{"backtest", "live"}
	fillerKinds = []string{"", "none", "fixed_size", "bar_perc", "point_perc"}
	classes     = []string{"", "generic", "stock", "futures", "forex", "crypto"}
	commKinds   = []string{"", "percentage", "fixed"}
	logLevels   = []string{"", "debug", "info", "warn", "error"}
)

// Validate checks configuration validity
func (c *Config) Validate() error {
	if !contains(modes, c.App.Mode) {
		return configErr("app.mode", "must be one of %v, got %q", modes, c.App.Mode)
	}

	if c.Broker.Cash.IsNegative() {
		return configErr("broker.cash", "must not be negative, got %s", c.Broker.Cash)
	}
	if c.Broker.FundMode && !c.Broker.FundStartVal.IsPositive() {
		return configErr("broker.fund_start_val", "must be positive in fund mode")
	}
	if c.Broker.Slippage.Perc.IsNegative() || c.Broker.Slippage.Fixed.IsNegative() {
		return configErr("broker.slippage", "must not be negative")
	}
	if !c.Broker.Slippage.Perc.IsZero() && !c.Broker.Slippage.Fixed.IsZero() {
		return configErr("broker.slippage", "perc and fixed are exclusive")
	}
	if !contains(fillerKinds, c.Broker.Filler.Kind) {
		return configErr("broker.filler.kind", "unknown filler %q", c.Broker.Filler.Kind)
	}

	if err := c.Commission.Default.validate("commission.default"); err != nil {
		return err
	}
	for inst, cc := range c.Commission.Instruments {
		if err := cc.validate("commission.instruments." + inst); err != nil {
			return err
		}
	}

	if len(c.Strategy.Instruments) == 0 {
		return configErr("strategy.instruments", "at least one instrument is required")
	}
	if c.Strategy.Fast <= 0 || c.Strategy.Slow <= c.Strategy.Fast {
		return configErr("strategy", "need 0 < fast < slow, got fast=%d slow=%d", c.Strategy.Fast, c.Strategy.Slow)
	}

	if c.App.Mode == "live" {
		if c.Gateway.RestURL == "" || (!hasPrefix(c.Gateway.RestURL, "http://") && !hasPrefix(c.Gateway.RestURL, "https://")) {
			return configErr("gateway.rest_url", "invalid URL %q", c.Gateway.RestURL)
		}
		if c.Gateway.WSURL != "" && !hasPrefix(c.Gateway.WSURL, "ws://") && !hasPrefix(c.Gateway.WSURL, "wss://") {
			return configErr("gateway.ws_url", "invalid URL %q", c.Gateway.WSURL)
		}
		if c.Live.PollIntervalMS <= 0 {
			return configErr("live.poll_interval_ms", "must be positive")
		}
	}

	if !contains(logLevels, c.Logging.Level) {
		return configErr("logging.level", "unknown level %q", c.Logging.Level)
	}
	return nil
}

func (cc CommissionConfig) validate(field string) error {
	if !contains(classes, cc.Class) {
		return configErr(field+".class", "unknown class %q", cc.Class)
	}
	if !contains(commKinds, cc.Kind) {
		return configErr(field+".kind", "unknown kind %q", cc.Kind)
	}
	for name, v := range map[string]decimal.Decimal{
		"commission": cc.Commission,
		"margin":     cc.Margin,
		"mult":       cc.Mult,
		"leverage":   cc.Leverage,
		"minimum":    cc.Minimum,
		"interest":   cc.Interest,
	} {
		if v.IsNegative() {
			return configErr(field+"."+name, "must not be negative, got %s", v)
		}
	}
	return nil
}

func configErr(field, format string, args ...any) error {
	return &domain.ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("QB_GATEWAY_KEY"); key != "" {
		cfg.Gateway.AccessKey = key
	}
	if secret := os.Getenv("QB_GATEWAY_SECRET"); secret != "" {
		cfg.Gateway.SecretKey = secret
	}
	if pass := os.Getenv("QB_GATEWAY_PASSPHRASE"); pass != "" {
		cfg.Gateway.Passphrase = pass
	}
	if brokers := os.Getenv("QB_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
}
