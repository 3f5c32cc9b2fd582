package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quantbroker/internal/commission"
	"quantbroker/internal/domain"
	"quantbroker/internal/engine"
	"quantbroker/internal/execution/backtest"
	"quantbroker/internal/execution/live"
	"quantbroker/internal/infra"
	"quantbroker/internal/infra/gateway"
	"quantbroker/internal/infra/publish"
	"quantbroker/internal/infra/storage"
	"quantbroker/internal/strategy"

	"github.com/google/uuid"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string

	Config    *infra.Config
	RunID     string
	Journal   *storage.Journal
	Metrics   *infra.Metrics
	Publisher publish.Publisher
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath}
}

// Initialize performs core system initialization (config, logger, DB, sinks)
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping quantbroker...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	return b.InitializeWith(cfg)
}

// InitializeWith initializes everything from an already loaded config.
func (b *Bootstrap) InitializeWith(cfg *infra.Config) error {
	b.Config = cfg
	b.RunID = uuid.NewString()

	// 2. Setup Logger
	logger := infra.NewLogger(cfg).With("run", b.RunID)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	journal, err := storage.Open(cfg.Storage.Path, b.RunID)
	if err != nil {
		return err
	}
	b.Journal = journal
	slog.Info("✅ Journal initialized", slog.String("path", cfg.Storage.Path))

	// 4. Metrics and downstream publishing
	b.Metrics = infra.NewMetrics("quantbroker")
	if len(cfg.Kafka.Brokers) > 0 {
		b.Publisher = publish.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, b.RunID)
		slog.Info("✅ Kafka publisher ready", slog.String("topic", cfg.Kafka.Topic))
	} else {
		b.Publisher = publish.Nop{}
	}
	return nil
}

// Close releases the journal and the publisher.
func (b *Bootstrap) Close() {
	if b.Publisher != nil {
		if err := b.Publisher.Close(); err != nil {
			slog.Warn("Failed to close publisher", slog.Any("error", err))
		}
	}
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			slog.Warn("Failed to close journal", slog.Any("error", err))
		}
	}
}

// NewRunner builds the runner for the configured mode together with the
// step interval, which is zero for a backtest.
func (b *Bootstrap) NewRunner(ctx context.Context) (*engine.Runner, time.Duration, error) {
	if b.Config.App.Mode == "live" {
		r, err := b.NewLiveRunner(ctx)
		return r, time.Duration(b.Config.Live.PollIntervalMS) * time.Millisecond, err
	}
	r, err := b.NewBacktestRunner()
	return r, 0, err
}

// NewBacktestRunner replays the bars stored in the journal.
func (b *Bootstrap) NewBacktestRunner() (*engine.Runner, error) {
	cfg := b.Config

	broker := backtest.New(backtestParams(cfg), backtest.WithObserver(b.Metrics))
	if filler := newFiller(cfg); filler != nil {
		broker.SetFiller(filler)
	}
	if err := installCommissions(cfg, broker.AddCommissionInfo); err != nil {
		return nil, err
	}

	feeds := make([]engine.Feed, 0, len(cfg.Strategy.Instruments))
	for _, inst := range cfg.Strategy.Instruments {
		feed, err := b.Journal.Feed(inst, time.Time{}, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("load bars: %w", err)
		}
		broker.AddFeed(feed)
		feeds = append(feeds, feed)
		slog.Info("✅ Feed loaded", slog.String("instrument", inst), slog.Int("bars", feed.Len()))
	}

	return engine.NewRunner(broker, b.newStrategy(), feeds, b.runnerOptions()...), nil
}

// NewLiveRunner connects the configured venue through the gateway. Bars
// pushed by the gateway are routed to the feeds until ctx is done.
func (b *Bootstrap) NewLiveRunner(ctx context.Context) (*engine.Runner, error) {
	cfg := b.Config

	venue, err := live.VenueByName(cfg.Live.Venue)
	if err != nil {
		return nil, err
	}

	gw := gateway.New(gateway.Options{
		RestURL:     cfg.Gateway.RestURL,
		WSURL:       cfg.Gateway.WSURL,
		AccessKey:   cfg.Gateway.AccessKey,
		SecretKey:   cfg.Gateway.SecretKey,
		Passphrase:  cfg.Gateway.Passphrase,
		Instruments: cfg.Strategy.Instruments,
		Timeout:     time.Duration(cfg.Live.RequestTimeoutSec) * time.Second,
	})

	broker := live.New(venue, gw, liveConfig(cfg),
		live.WithObserver(b.Metrics),
		live.WithMetrics(b.Metrics),
	)

	streams := make(map[string]*engine.StreamFeed, len(cfg.Strategy.Instruments))
	feeds := make([]engine.Feed, 0, len(cfg.Strategy.Instruments))
	for _, inst := range cfg.Strategy.Instruments {
		f := engine.NewStreamFeed(inst)
		streams[inst] = f
		feeds = append(feeds, f)
	}

	if bars := gw.Bars(); bars != nil {
		go routeBars(ctx, bars, streams)
	} else {
		slog.Warn("No gateway stream configured, the strategy will not receive bars")
	}

	opts := append(b.runnerOptions(), engine.WithCheatOnOpen(false))
	return engine.NewRunner(broker, b.newStrategy(), feeds, opts...), nil
}

func (b *Bootstrap) newStrategy() strategy.Strategy {
	s := b.Config.Strategy
	return strategy.NewSMACross(s.Instruments, s.Fast, s.Slow, s.Size.InexactFloat64())
}

func (b *Bootstrap) runnerOptions() []engine.Option {
	return []engine.Option{
		engine.WithJournal(b.Journal),
		engine.WithPublisher(b.Publisher),
		engine.WithMetrics(b.Metrics),
		engine.WithCheatOnOpen(b.Config.Broker.CheatOnOpen),
	}
}

// routeBars hands gateway bars to the feed of their instrument.
func routeBars(ctx context.Context, bars <-chan gateway.BarEvent, feeds map[string]*engine.StreamFeed) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-bars:
			f, ok := feeds[ev.Instrument]
			if !ok {
				slog.Debug("Bar for unknown instrument", slog.String("instrument", ev.Instrument))
				continue
			}
			f.Push(ev.Bar)
		}
	}
}

func backtestParams(cfg *infra.Config) backtest.Params {
	bc := cfg.Broker
	return backtest.Params{
		Cash:         bc.Cash.InexactFloat64(),
		CheckSubmit:  bc.CheckSubmit,
		SlipPerc:     bc.Slippage.Perc.InexactFloat64(),
		SlipFixed:    bc.Slippage.Fixed.InexactFloat64(),
		SlipOpen:     bc.Slippage.Open,
		SlipMatch:    bc.Slippage.Match,
		SlipLimit:    bc.Slippage.Limit,
		SlipOut:      bc.Slippage.Out,
		CheatOnClose: bc.CheatOnClose,
		CheatOnOpen:  bc.CheatOnOpen,
		Int2PnL:      bc.Int2PnL,
		ShortCash:    bc.ShortCash,
		FundStartVal: bc.FundStartVal.InexactFloat64(),
		FundMode:     bc.FundMode,
	}
}

// newFiller returns nil when every order may fill completely.
func newFiller(cfg *infra.Config) backtest.Filler {
	f := cfg.Broker.Filler
	switch f.Kind {
	case "fixed_size":
		return backtest.FixedSize{Size: f.Size}
	case "bar_perc":
		return backtest.FixedBarPerc{Perc: f.Perc}
	case "point_perc":
		return backtest.BarPointPerc{MinMov: f.MinMov, Perc: f.Perc}
	default:
		return nil
	}
}

func commissionInfo(cc infra.CommissionConfig) (*commission.Info, error) {
	class := commission.Generic
	if cc.Class != "" {
		c, err := commission.ParseClass(cc.Class)
		if err != nil {
			return nil, &domain.ConfigError{Field: "commission.class", Err: err}
		}
		class = c
	}

	kind := commission.Percentage
	if cc.Kind == "fixed" {
		kind = commission.Fixed
	}

	return commission.New(commission.Params{
		Class:        class,
		Commission:   cc.Commission.InexactFloat64(),
		Margin:       cc.Margin.InexactFloat64(),
		Mult:         cc.Mult.InexactFloat64(),
		Kind:         kind,
		PercAbs:      cc.PercAbs,
		StockLike:    cc.StockLike,
		Leverage:     cc.Leverage.InexactFloat64(),
		Minimum:      cc.Minimum.InexactFloat64(),
		Interest:     cc.Interest.InexactFloat64(),
		InterestLong: cc.InterestLong,
	}), nil
}

// installCommissions hands the default policy (instrument "") and every
// per-instrument policy to add.
func installCommissions(cfg *infra.Config, add func(info *commission.Info, instrument string)) error {
	info, err := commissionInfo(cfg.Commission.Default)
	if err != nil {
		return err
	}
	add(info, "")

	for inst, cc := range cfg.Commission.Instruments {
		info, err := commissionInfo(cc)
		if err != nil {
			return fmt.Errorf("instrument %s: %w", inst, err)
		}
		add(info, inst)
	}
	return nil
}

func liveConfig(cfg *infra.Config) live.Config {
	lc := cfg.Live
	return live.Config{
		Workers:        lc.Workers,
		QueueSize:      lc.QueueSize,
		ConnectTimeout: time.Duration(lc.ConnectTimeoutSec) * time.Second,
		RequestTimeout: time.Duration(lc.RequestTimeoutSec) * time.Second,
		ReconnectBase:  time.Duration(lc.ReconnectBaseMS) * time.Millisecond,
		ReconnectMax:   time.Duration(lc.ReconnectMaxMS) * time.Millisecond,
		MaxReconnects:  lc.MaxReconnects,
		Heartbeat:      time.Duration(lc.HeartbeatMS) * time.Millisecond,
		Multipliers:    multipliers(cfg),
	}
}

// multipliers resolves the contract multiplier of every traded instrument
// from its commission policy, falling back to the default one.
func multipliers(cfg *infra.Config) map[string]float64 {
	out := make(map[string]float64, len(cfg.Strategy.Instruments))
	for _, inst := range cfg.Strategy.Instruments {
		cc, ok := cfg.Commission.Instruments[inst]
		if !ok {
			cc = cfg.Commission.Default
		}
		if cc.Mult.IsPositive() {
			out[inst] = cc.Mult.InexactFloat64()
		}
	}
	return out
}
