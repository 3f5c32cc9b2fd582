// Package live connects the broker contract to real venues through a Store.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"quantbroker/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const fillEpsilon = 1e-9

// Config tunes an Adapter.
type Config struct {
	Workers        int
	QueueSize      int
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	ReconnectBase  time.Duration
	ReconnectMax   time.Duration
	// MaxReconnects is the number of consecutive failed attempts before the
	// adapter gives up. Zero retries forever.
	MaxReconnects int
	Heartbeat     time.Duration
	// Multipliers holds the contract multiplier per instrument for the
	// realized PnL of fills. Missing instruments use 1.
	Multipliers map[string]float64
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		QueueSize:      256,
		ConnectTimeout: 30 * time.Second,
		RequestTimeout: 10 * time.Second,
		ReconnectBase:  1 * time.Second,
		ReconnectMax:   60 * time.Second,
		Heartbeat:      5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = d.ReconnectBase
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = d.ReconnectMax
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = d.Heartbeat
	}
	return c
}

// Metrics receives connection and queue measurements.
type Metrics interface {
	IncReconnect(venue string)
	SetQueueDepth(venue string, depth int)
}

type task func(ctx context.Context)

// Adapter implements domain.Broker over a venue Store.
//
// The order, position and account tables each have their own lock. When
// more than one is needed they are taken in that order. Notifications use
// a fourth lock that is always taken last.
type Adapter struct {
	venue    *Venue
	store    domain.Store
	cfg      Config
	logger   *slog.Logger
	observer domain.Observer
	metrics  Metrics

	nextRef atomic.Uint64

	ordersMu sync.Mutex
	orders   map[string]*domain.Order // by client id
	venueIDs map[string]string        // venue id -> client id

	positionsMu sync.RWMutex
	positions   map[string]*domain.Position

	accountMu sync.RWMutex
	account   *domain.AccountBook

	notifMu sync.Mutex
	notifs  []*domain.Order

	connMu      sync.Mutex
	connected   bool
	connErr     error
	connChanged chan struct{}

	tasks  chan task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ domain.Broker = (*Adapter)(nil)

// Option customizes an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithObserver receives every order and account update.
func WithObserver(o domain.Observer) Option {
	return func(a *Adapter) { a.observer = o }
}

// WithMetrics reports reconnects and queue depth.
func WithMetrics(m Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// New creates an adapter for venue over store.
func New(venue *Venue, store domain.Store, cfg Config, opts ...Option) *Adapter {
	cfg = cfg.withDefaults()
	a := &Adapter{
		venue:       venue,
		store:       store,
		cfg:         cfg,
		logger:      slog.Default().With("module", "live_broker", "venue", venue.Name),
		orders:      make(map[string]*domain.Order),
		venueIDs:    make(map[string]string),
		positions:   make(map[string]*domain.Position),
		account:     domain.NewAccountBook(venue.Base),
		connChanged: make(chan struct{}),
		tasks:       make(chan task, cfg.QueueSize),
		ctx:         context.Background(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Venue returns the mapping table in use.
func (a *Adapter) Venue() *Venue { return a.venue }

// Start launches the workers and the connection manager and waits until the
// first session is up, at most ConnectTimeout.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.ctx, a.cancel = ctx, cancel

	for i := 0; i < a.cfg.Workers; i++ {
		a.wg.Add(1)
		go a.worker(ctx)
	}

	a.wg.Add(1)
	go a.connectionLoop(ctx)

	if events := a.store.Events(); events != nil {
		a.wg.Add(1)
		go a.eventLoop(ctx, events)
	}

	if err := a.waitConnected(ctx, a.cfg.ConnectTimeout); err != nil {
		a.Stop()
		return err
	}

	reqCtx, reqCancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer reqCancel()
	a.refreshAccount(reqCtx)

	a.logger.Info("Live broker started",
		slog.Int("workers", a.cfg.Workers),
		slog.Float64("cash", a.Cash()),
	)
	return nil
}

// Stop ends the session. Orders left at the venue are not canceled.
func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Store close failed", slog.Any("error", err))
	}
	a.wg.Wait()
	a.setConnState(false, nil)
	a.logger.Info("Live broker stopped")
}

// Connected reports whether a session is up.
func (a *Adapter) Connected() bool {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	return a.connected
}

func (a *Adapter) setConnState(connected bool, err error) {
	a.connMu.Lock()
	a.connected, a.connErr = connected, err
	close(a.connChanged)
	a.connChanged = make(chan struct{})
	a.connMu.Unlock()
}

// waitConnected blocks until the connection manager reports a session, a
// fatal failure, or the timeout.
func (a *Adapter) waitConnected(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		a.connMu.Lock()
		connected, err, changed := a.connected, a.connErr, a.connChanged
		a.connMu.Unlock()

		if connected {
			return nil
		}
		if err != nil && !domain.IsRetriable(err) {
			return fmt.Errorf("connect %s: %w", a.venue.Name, err)
		}

		select {
		case <-changed:
		case <-timer.C:
			return fmt.Errorf("%w: %s after %s", domain.ErrConnectTimeout, a.venue.Name, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// connectionLoop owns the session: connect, watch, reconnect with backoff.
func (a *Adapter) connectionLoop(ctx context.Context) {
	defer a.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Connection loop panic recovered", slog.Any("panic", r))
		}
	}()

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if err := a.store.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			a.logger.Warn("Venue connection failed",
				slog.Any("error", err),
				slog.Int("retry", failures),
			)
			if !domain.IsRetriable(err) || (a.cfg.MaxReconnects > 0 && failures > a.cfg.MaxReconnects) {
				a.logger.Error("Giving up on venue connection", slog.Int("attempts", failures))
				a.setConnState(false, domain.NewFatalNetworkError("connect", err))
				return
			}
			a.setConnState(false, err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(a.calculateBackoff(failures - 1)):
				continue
			}
		}

		failures = 0
		a.setConnState(true, nil)
		a.logger.Info("Venue connected")

		a.watch(ctx)
		if ctx.Err() != nil {
			return
		}

		a.setConnState(false, nil)
		if a.metrics != nil {
			a.metrics.IncReconnect(a.venue.Name)
		}
		a.logger.Warn("Venue disconnected, reconnecting")
	}
}

// calculateBackoff returns the delay for the current retry attempt
func (a *Adapter) calculateBackoff(retryCount int) time.Duration {
	delay := a.cfg.ReconnectBase * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > a.cfg.ReconnectMax || delay <= 0 {
		delay = a.cfg.ReconnectMax
	}
	return delay
}

// watch returns once the store reports the session lost.
func (a *Adapter) watch(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.store.Connected() {
				return
			}
		}
	}
}

func (a *Adapter) worker(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-a.tasks:
			a.run(ctx, t)
			a.reportQueue()
		}
	}
}

func (a *Adapter) run(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Task panic recovered", slog.Any("panic", r))
		}
	}()
	t(ctx)
}

// enqueue hands t to the worker pool without blocking the caller.
func (a *Adapter) enqueue(t task) bool {
	select {
	case a.tasks <- t:
		a.reportQueue()
		return true
	default:
		a.logger.Warn("Task queue full, dropping task", slog.Int("capacity", cap(a.tasks)))
		return false
	}
}

func (a *Adapter) reportQueue() {
	if a.metrics != nil {
		a.metrics.SetQueueDepth(a.venue.Name, len(a.tasks))
	}
}

// eventLoop moves pushed payloads onto the worker pool so the store's
// callback goroutine never waits on order processing.
func (a *Adapter) eventLoop(ctx context.Context, events <-chan domain.Payload) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-events:
			if !ok {
				return
			}
			a.enqueue(func(context.Context) { a.handleEvent(p) })
		}
	}
}

func (a *Adapter) handleEvent(p domain.Payload) {
	switch stringOf(p[domain.EventKey]) {
	case domain.EventBalance:
		a.applyBalance(p)
	case domain.EventPosition:
		a.applyPosition(p)
	default:
		a.applyOrderPayload(p)
	}
}

// Submit registers a copy of o and dispatches it to the venue. The
// returned order is a snapshot, Submitted or Rejected when it cannot be sent
// at all. Later states arrive as notifications.
func (a *Adapter) Submit(o *domain.Order) *domain.Order {
	if o.Status != domain.StatusCreated {
		a.logger.Warn("Order already submitted", slog.Uint64("ref", o.Ref), slog.String("status", o.Status.String()))
		return o
	}

	a.ordersMu.Lock()
	defer a.ordersMu.Unlock()

	// Workers only ever touch this copy, under ordersMu.
	in := o.Clone()
	in.Ref = a.nextRef.Add(1)
	if in.ClientID == "" {
		in.ClientID = uuid.NewString()
	}
	in.Executed.Remaining = in.Size
	in.Created.Time = time.Now()
	in.Created.Price = in.Price
	a.orders[in.ClientID] = in

	if !a.Connected() {
		a.reject(in, domain.ErrNotConnected.Error())
		return in.Clone()
	}

	req, err := a.venue.Request(in, a.Position(in.Instrument).Size)
	if err != nil {
		a.reject(in, err.Error())
		return in.Clone()
	}

	_ = in.Transition(domain.StatusSubmitted)
	a.notify(in)

	if !a.enqueue(func(ctx context.Context) { a.place(ctx, in, req) }) {
		a.reject(in, "task queue full")
	}
	return in.Clone()
}

func (a *Adapter) place(ctx context.Context, o *domain.Order, req domain.Payload) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()

	resp, err := a.store.CreateOrder(ctx, req)

	a.ordersMu.Lock()
	defer a.ordersMu.Unlock()

	if err != nil {
		if domain.IsRetriable(err) {
			a.logger.Warn("Order placement failed, left for the next poll",
				slog.String("client_id", o.ClientID),
				slog.Any("error", err),
			)
			return
		}
		a.reject(o, err.Error())
		return
	}
	a.applyResponse(o, resp)
}

// Cancel dispatches a cancel request. The venue decides the outcome, which
// arrives with the response, a push event or the next poll.
func (a *Adapter) Cancel(o *domain.Order) bool {
	a.ordersMu.Lock()
	in, ok := a.orders[o.ClientID]
	if !ok {
		a.ordersMu.Unlock()
		a.logger.Debug("Cancel ignored", slog.Any("error", fmt.Errorf("%w: client id %q", domain.ErrOrderNotFound, o.ClientID)))
		return false
	}
	alive := in.Alive() && in.Status != domain.StatusCreated
	req := a.venue.CancelRequest(in)
	a.ordersMu.Unlock()

	if !alive {
		return false
	}

	return a.enqueue(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
		defer cancel()

		resp, err := a.store.CancelOrder(ctx, req)
		if err != nil {
			a.logger.Warn("Cancel request failed", slog.String("client_id", in.ClientID), slog.Any("error", err))
			return
		}

		a.ordersMu.Lock()
		defer a.ordersMu.Unlock()
		a.applyResponse(in, resp)
	})
}

// Next polls the venue for open orders, balance and positions.
func (a *Adapter) Next() {
	if !a.Connected() {
		return
	}
	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.RequestTimeout)
	defer cancel()

	a.pollOrders(ctx)
	a.refreshAccount(ctx)

	if a.observer != nil {
		a.observer.OnAccount(a.Cash(), a.Value())
	}
}

func (a *Adapter) pollOrders(ctx context.Context) {
	type poll struct {
		order *domain.Order
		req   domain.Payload
	}

	a.ordersMu.Lock()
	var open []poll
	for _, o := range a.orders {
		if o.Alive() && o.Status != domain.StatusCreated {
			open = append(open, poll{order: o, req: a.venue.FetchRequest(o)})
		}
	}
	a.ordersMu.Unlock()

	if len(open) == 0 {
		return
	}

	results := make([]domain.Payload, len(open))
	var g errgroup.Group
	g.SetLimit(a.cfg.Workers)
	for i, p := range open {
		i, p := i, p
		g.Go(func() error {
			resp, err := a.store.FetchOrder(ctx, p.req)
			if err != nil {
				a.logger.Debug("Order poll failed", slog.String("client_id", p.order.ClientID), slog.Any("error", err))
				return nil
			}
			results[i] = resp
			return nil
		})
	}
	_ = g.Wait()

	a.ordersMu.Lock()
	defer a.ordersMu.Unlock()
	for i, resp := range results {
		if resp != nil {
			a.applyResponse(open[i].order, resp)
		}
	}
}

func (a *Adapter) refreshAccount(ctx context.Context) {
	if bal, err := a.store.FetchBalance(ctx); err != nil {
		a.logger.Warn("Balance poll failed", slog.Any("error", err))
	} else {
		a.applyBalance(bal)
	}

	list, err := a.store.Positions(ctx)
	if err != nil {
		a.logger.Warn("Position poll failed", slog.Any("error", err))
		return
	}

	fresh := make(map[string]*domain.Position, len(list))
	for _, p := range list {
		inst, pos, err := a.venue.ParsePosition(p)
		if err != nil {
			a.logger.Warn("Position report dropped", slog.Any("error", err))
			continue
		}
		pos.Updated = time.Now()
		fresh[inst] = &pos
	}

	a.positionsMu.Lock()
	a.positions = fresh
	a.positionsMu.Unlock()
}

func (a *Adapter) applyBalance(p domain.Payload) {
	bal, err := a.venue.ParseBalance(p)
	if err != nil {
		a.logger.Warn("Balance report dropped", slog.Any("error", err))
		return
	}
	// The venue stays authoritative, an odd report is kept and flagged.
	if err := bal.VerifyInvariant(); err != nil {
		a.logger.Warn("Inconsistent balance report", slog.Any("error", err))
	}
	a.accountMu.Lock()
	a.account.Set(bal)
	a.accountMu.Unlock()
}

func (a *Adapter) applyPosition(p domain.Payload) {
	inst, pos, err := a.venue.ParsePosition(p)
	if err != nil {
		a.logger.Warn("Position report dropped", slog.Any("error", err))
		return
	}
	pos.Updated = time.Now()
	a.positionsMu.Lock()
	a.positions[inst] = &pos
	a.positionsMu.Unlock()
}

// applyOrderPayload routes a pushed order report to its order.
func (a *Adapter) applyOrderPayload(p domain.Payload) {
	u, err := a.venue.ParseOrder(p)
	if err != nil {
		a.logger.Warn("Order report dropped", slog.Any("error", err))
		return
	}

	a.ordersMu.Lock()
	defer a.ordersMu.Unlock()

	o := a.lookup(u.ClientID, u.VenueID)
	if o == nil {
		a.logger.Debug("Report for unknown order", slog.String("client_id", u.ClientID), slog.String("venue_id", u.VenueID))
		return
	}
	a.bind(o, u.VenueID)
	a.apply(o, u)
}

// lookup must be called with ordersMu held.
func (a *Adapter) lookup(clientID, venueID string) *domain.Order {
	if o, ok := a.orders[clientID]; ok {
		return o
	}
	if id, ok := a.venueIDs[venueID]; ok {
		return a.orders[id]
	}
	return nil
}

func (a *Adapter) bind(o *domain.Order, venueID string) {
	if venueID == "" || o.VenueID == venueID {
		return
	}
	o.VenueID = venueID
	a.venueIDs[venueID] = o.ClientID
}

// applyResponse must be called with ordersMu held.
func (a *Adapter) applyResponse(o *domain.Order, resp domain.Payload) {
	u, err := a.venue.ParseOrder(resp)
	if err != nil {
		a.logger.Warn("Order report dropped", slog.String("client_id", o.ClientID), slog.Any("error", err))
		return
	}
	a.bind(o, u.VenueID)
	a.apply(o, u)
}

// apply moves o toward the reported state. Fills come from the cumulative
// filled size, so repeated reports are idempotent.
func (a *Adapter) apply(o *domain.Order, u orderUpdate) {
	if !o.Alive() {
		return
	}
	if u.Known && u.Status == domain.StatusRejected {
		a.reject(o, u.Reason)
		return
	}

	if u.Known && o.Status == domain.StatusSubmitted && u.Status != domain.StatusSubmitted {
		_ = o.Transition(domain.StatusAccepted)
		a.notify(o)
	}

	filled := u.Filled
	if u.Known && u.Status == domain.StatusCompleted && filled == 0 {
		filled = math.Abs(o.Size)
	}
	if delta := filled - math.Abs(o.Executed.Size); delta > fillEpsilon {
		a.fill(o, delta, u.AvgPrice)
	}

	if !u.Known || !o.Alive() {
		return
	}
	switch u.Status {
	case domain.StatusCompleted:
		// The venue closed the order short of its size, or the fill could
		// not be priced. Either way nothing more will execute.
		o.Reason = fmt.Sprintf("closed by venue with %g of %g executed", o.Executed.Size, o.Size)
		if err := o.Transition(domain.StatusCompleted); err != nil {
			a.logger.Warn("Venue status not applicable", slog.Any("error", err))
			return
		}
		a.logger.Warn("Order closed by venue before full execution",
			slog.String("client_id", o.ClientID),
			slog.Float64("executed", o.Executed.Size),
			slog.Float64("size", o.Size),
		)
		a.notify(o)
	case domain.StatusCanceled, domain.StatusExpired, domain.StatusMargin:
		if err := o.Transition(u.Status); err != nil {
			a.logger.Warn("Venue status not applicable", slog.Any("error", err))
			return
		}
		a.notify(o)
	}
}

// fillPrice picks the price of delta: the venue's running average, then the
// order price, the venue position entry price and the price at creation.
func (a *Adapter) fillPrice(o *domain.Order, delta, avg float64) float64 {
	prev := math.Abs(o.Executed.Size)
	if prev > 0 && avg > 0 {
		if p := (avg*(prev+delta) - o.Executed.Price*prev) / delta; p > 0 {
			return p
		}
	}
	if avg > 0 {
		return avg
	}
	if o.Price > 0 {
		return o.Price
	}

	a.positionsMu.RLock()
	pos, ok := a.positions[o.Instrument]
	entry := 0.0
	if ok {
		entry = pos.Price
	}
	a.positionsMu.RUnlock()
	if entry > 0 {
		return entry
	}
	return o.Created.Price
}

// fill records delta at the price implied by the venue's running average.
func (a *Adapter) fill(o *domain.Order, delta, avg float64) {
	price := a.fillPrice(o, delta, avg)
	if price <= 0 {
		a.logger.Warn("Fill without price ignored",
			slog.String("client_id", o.ClientID),
			slog.Float64("size", delta),
			slog.Any("error", domain.ErrInvalidPrice),
		)
		return
	}

	size := math.Copysign(delta, o.Size)
	now := time.Now()
	mult := a.cfg.Multipliers[o.Instrument]
	if mult == 0 {
		mult = 1
	}

	a.positionsMu.Lock()
	pos := a.position(o.Instrument)
	before := pos.Price
	psize, pprice, opened, closed := pos.PseudoUpdate(size, price)
	bit := domain.ExecutionBit{
		Time:   now,
		Size:   size,
		Price:  price,
		Closed: -closed,
		Opened: opened,
		PnL:    closed * (price - before) * mult,
		PSize:  psize,
		PPrice: pprice,
	}
	if err := o.Execute(bit); err != nil {
		a.positionsMu.Unlock()
		a.logger.Error("Execution rejected by order", slog.Any("error", err))
		return
	}
	pos.Update(size, price, now)
	a.positionsMu.Unlock()

	a.logger.Debug("Order executed",
		slog.String("client_id", o.ClientID),
		slog.Float64("size", size),
		slog.Float64("price", price),
		slog.String("status", o.Status.String()),
	)
	a.notify(o)
}

// position must be called with positionsMu held for writing.
func (a *Adapter) position(instrument string) *domain.Position {
	pos, ok := a.positions[instrument]
	if !ok {
		pos = &domain.Position{}
		a.positions[instrument] = pos
	}
	return pos
}

func (a *Adapter) reject(o *domain.Order, reason string) {
	if err := o.Reject(reason); err != nil {
		a.logger.Warn("Reject not applicable", slog.Any("error", err))
		return
	}
	a.logger.Warn("Order rejected", slog.String("client_id", o.ClientID), slog.String("reason", reason))
	a.notify(o)
}

func (a *Adapter) notify(o *domain.Order) {
	snap := o.Clone()
	a.notifMu.Lock()
	a.notifs = append(a.notifs, snap)
	a.notifMu.Unlock()
	if a.observer != nil {
		a.observer.OnOrder(snap)
	}
}

// Notification pops the oldest order snapshot.
func (a *Adapter) Notification() *domain.Order {
	a.notifMu.Lock()
	defer a.notifMu.Unlock()
	if len(a.notifs) == 0 {
		return nil
	}
	o := a.notifs[0]
	a.notifs[0] = nil
	a.notifs = a.notifs[1:]
	return o
}

// HasNotifications reports whether Notification would return an order.
func (a *Adapter) HasNotifications() bool {
	a.notifMu.Lock()
	defer a.notifMu.Unlock()
	return len(a.notifs) > 0
}

// Cash is the free balance of the venue's base currency.
func (a *Adapter) Cash() float64 {
	a.accountMu.RLock()
	defer a.accountMu.RUnlock()
	return a.account.Cash().InexactFloat64()
}

// Value is the total balance of the base currency as reported by the venue.
// Other currencies are left out until they can be priced.
func (a *Adapter) Value() float64 {
	a.accountMu.RLock()
	defer a.accountMu.RUnlock()
	return a.account.Equity(nil).InexactFloat64()
}

// Balances returns the latest report of every currency.
func (a *Adapter) Balances() map[string]domain.Balance {
	a.accountMu.RLock()
	defer a.accountMu.RUnlock()
	return a.account.Snapshot()
}

// Position returns a copy of the instrument position, flat when none exists.
func (a *Adapter) Position(instrument string) domain.Position {
	a.positionsMu.RLock()
	defer a.positionsMu.RUnlock()
	if pos, ok := a.positions[instrument]; ok {
		return *pos
	}
	return domain.Position{}
}

// Orders returns snapshots of every order seen in this session.
func (a *Adapter) Orders() []*domain.Order {
	a.ordersMu.Lock()
	defer a.ordersMu.Unlock()
	out := make([]*domain.Order, 0, len(a.orders))
	for _, o := range a.orders {
		out = append(out, o.Clone())
	}
	return out
}
