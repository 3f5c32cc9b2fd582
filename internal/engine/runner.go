// Package engine drives a strategy against a broker one step at a time.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"quantbroker/internal/domain"
	"quantbroker/internal/strategy"
)

// Journal persists what the Runner sees.
type Journal interface {
	SaveBars(instrument string, bars []domain.Bar) error
	RecordOrder(o *domain.Order) error
	RecordValue(t time.Time, cash, value, fundValue float64) error
}

// Publisher streams order snapshots downstream.
type Publisher interface {
	Publish(ctx context.Context, o *domain.Order) error
}

// Metrics records step timings and failures.
type Metrics interface {
	RecordBar(latency time.Duration)
	RecordError()
}

// Stats is a snapshot of the Runner for external reads.
type Stats struct {
	Steps  int       `json:"steps"`
	Last   time.Time `json:"last"`
	Cash   float64   `json:"cash"`
	Value  float64   `json:"value"`
	Orders int       `json:"orders"`
}

// Runner is the single-threaded step loop.
type Runner struct {
	broker   domain.Broker
	feeds    []Feed
	strategy strategy.Strategy
	env      strategy.Env

	cheatOnOpen bool
	journal     Journal
	publisher   Publisher
	metrics     Metrics
	dumpPath    string
	logger      *slog.Logger

	mu    sync.RWMutex // Used only for external reads
	stats Stats
}

// Option configures a Runner.
type Option func(*Runner)

func WithJournal(j Journal) Option { return func(r *Runner) { r.journal = j } }
func WithPublisher(p Publisher) Option { return func(r *Runner) { r.publisher = p } }
func WithMetrics(m Metrics) Option { return func(r *Runner) { r.metrics = m } }
func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithCheatOnOpen calls NextOpen of strategies that implement it before
// the broker matches each bar.
func WithCheatOnOpen(on bool) Option { return func(r *Runner) { r.cheatOnOpen = on } }

// WithDumpPath sets where the state goes when a step panics.
func WithDumpPath(path string) Option { return func(r *Runner) { r.dumpPath = path } }

// NewRunner creates a runner over broker and feeds.
func NewRunner(broker domain.Broker, strat strategy.Strategy, feeds []Feed, opts ...Option) *Runner {
	env := strategy.Env{Broker: broker, Feeds: make(map[string]domain.Feed, len(feeds))}
	for _, f := range feeds {
		env.Feeds[f.Name()] = f
	}
	r := &Runner{
		broker:   broker,
		feeds:    feeds,
		strategy: strat,
		env:      env,
		dumpPath: "panic_dump.json",
		logger:   slog.Default().With("module", "runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run replays the feeds until they are exhausted or ctx is done.
// The broker is started and stopped by Run.
func (r *Runner) Run(ctx context.Context) (err error) {
	if err := r.broker.Start(ctx); err != nil {
		return fmt.Errorf("start broker: %w", err)
	}
	stopped := false
	defer func() {
		if !stopped {
			r.broker.Stop()
		}
	}()
	defer r.recoverStep(&err)

	r.logger.Info("Runner started", slog.Int("feeds", len(r.feeds)))
	for {
		if ctx.Err() != nil {
			r.logger.Info("Runner stopping...")
			return ctx.Err()
		}
		advanced := r.advance()
		if len(advanced) == 0 {
			break
		}
		r.step(ctx, advanced)
	}

	// Orders left open are canceled by Stop and still report their state.
	stopped = true
	r.broker.Stop()
	r.drain(ctx)
	stats := r.Stats()
	r.logger.Info("Runner finished",
		slog.Int("steps", stats.Steps),
		slog.Float64("cash", stats.Cash),
		slog.Float64("value", stats.Value),
	)
	return nil
}

// RunLive steps every interval against a live broker. Bars pushed into
// the feeds reach the strategy, and the broker polls its venue on every
// tick even when no bar arrived.
func (r *Runner) RunLive(ctx context.Context, interval time.Duration) (err error) {
	if err := r.broker.Start(ctx); err != nil {
		return fmt.Errorf("start broker: %w", err)
	}
	defer r.broker.Stop()
	defer r.recoverStep(&err)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Runner started (live)", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Runner stopping...")
			return nil
		case <-ticker.C:
			advanced := r.advance()
			r.persistBars(advanced)
			r.step(ctx, advanced)
		}
	}
}

// advance moves every feed whose next bar is the earliest one. Feeds
// that cannot peek are advanced on every call.
func (r *Runner) advance() []Feed {
	var next time.Time
	for _, f := range r.feeds {
		p, ok := f.(peeker)
		if !ok {
			continue
		}
		if bar, ok := p.Peek(); ok && (next.IsZero() || bar.Time.Before(next)) {
			next = bar.Time
		}
	}

	var advanced []Feed
	for _, f := range r.feeds {
		if p, ok := f.(peeker); ok {
			bar, ok := p.Peek()
			if !ok || !bar.Time.Equal(next) {
				continue
			}
		}
		if f.Advance() {
			advanced = append(advanced, f)
		}
	}
	return advanced
}

func (r *Runner) step(ctx context.Context, advanced []Feed) {
	start := time.Now()

	fresh := len(advanced) > 0
	if fresh && r.cheatOnOpen {
		if opener, ok := r.strategy.(strategy.OpenStrategy); ok {
			opener.NextOpen(r.env)
		}
	}

	r.broker.Next()
	r.drain(ctx)

	if fresh {
		r.strategy.Next(r.env)
	}

	now := r.lastTime(advanced)
	cash, value := r.broker.Cash(), r.broker.Value()
	if r.journal != nil && fresh {
		if err := r.journal.RecordValue(now, cash, value, r.fundValue()); err != nil {
			r.fail("Failed to record value", err)
		}
	}

	r.mu.Lock()
	r.stats.Steps++
	if fresh {
		r.stats.Last = now
	}
	r.stats.Cash, r.stats.Value = cash, value
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordBar(time.Since(start))
	}
}

// drain hands every pending notification to the strategy and the sinks.
func (r *Runner) drain(ctx context.Context) {
	for r.broker.HasNotifications() {
		o := r.broker.Notification()
		if o == nil {
			return
		}

		r.mu.Lock()
		r.stats.Orders++
		r.mu.Unlock()

		if r.journal != nil {
			if err := r.journal.RecordOrder(o); err != nil {
				r.fail("Failed to record order", err)
			}
		}
		if r.publisher != nil {
			if err := r.publisher.Publish(ctx, o); err != nil {
				r.fail("Failed to publish order", err)
			}
		}
		r.strategy.NotifyOrder(o)
	}
}

func (r *Runner) persistBars(advanced []Feed) {
	if r.journal == nil {
		return
	}
	for _, f := range advanced {
		bar, ok := f.Current()
		if !ok {
			continue
		}
		if err := r.journal.SaveBars(f.Name(), []domain.Bar{bar}); err != nil {
			r.fail("Failed to save bar", err)
		}
	}
}

func (r *Runner) lastTime(advanced []Feed) time.Time {
	var t time.Time
	for _, f := range advanced {
		if bar, ok := f.Current(); ok && bar.Time.After(t) {
			t = bar.Time
		}
	}
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func (r *Runner) fundValue() float64 {
	if fb, ok := r.broker.(interface{ FundValue() float64 }); ok {
		return fb.FundValue()
	}
	return 0
}

func (r *Runner) fail(msg string, err error) {
	r.logger.Error(msg, slog.Any("error", err))
	if r.metrics != nil {
		r.metrics.RecordError()
	}
}

// recoverStep turns a panic into an error after dumping the state.
func (r *Runner) recoverStep(err *error) {
	if p := recover(); p != nil {
		r.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", p))
		r.DumpState(r.dumpPath)
		*err = fmt.Errorf("HALTED: %v", p)
	}
}

// Stats returns a snapshot of the runner (external read).
func (r *Runner) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// DumpState writes the runner and broker state to a file (for post-mortem).
func (r *Runner) DumpState(filename string) {
	r.logger.Info("Dumping internal state...", slog.String("file", filename))

	positions := make(map[string]domain.Position, len(r.feeds))
	for _, f := range r.feeds {
		positions[f.Name()] = r.broker.Position(f.Name())
	}

	data := struct {
		Stats     Stats                      `json:"stats"`
		Positions map[string]domain.Position `json:"positions"`
		Balances  map[string]domain.Balance  `json:"balances,omitempty"`
	}{
		Stats:     r.Stats(),
		Positions: positions,
	}
	if b, ok := r.broker.(interface{ Balances() map[string]domain.Balance }); ok {
		data.Balances = b.Balances()
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		r.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		r.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}
