// Package backtest simulates order execution against historical bars.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"quantbroker/internal/commission"
	"quantbroker/internal/domain"
)

// Broker matches orders bar by bar. It is single threaded: every method
// must be called from the goroutine that drives the simulation.
type Broker struct {
	params Params
	logger *slog.Logger

	cash  float64
	value float64

	feeds       map[string]domain.Feed
	comminfo    map[string]*commission.Info
	defaultComm *commission.Info
	positions   map[string]*domain.Position

	orders    []*domain.Order // every submitted order, in ref order
	pending   []*domain.Order
	newOrders []*domain.Order // promoted to pending on the next bar
	notifs    []*domain.Order

	filler   Filler
	observer domain.Observer
	nextRef  uint64

	credit     map[string]float64 // interest charged since the position opened
	interestAt map[string]time.Time

	cashAdds   []float64
	fundShares float64
	fundValue  float64
}

var _ domain.Broker = (*Broker)(nil)

// Option customizes a Broker.
type Option func(*Broker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithFiller sets the volume filler.
func WithFiller(f Filler) Option {
	return func(b *Broker) { b.filler = f }
}

// WithObserver receives every order and account update.
func WithObserver(o domain.Observer) Option {
	return func(b *Broker) { b.observer = o }
}

// New creates a broker with the default commission set to zero-cost stock.
func New(params Params, opts ...Option) *Broker {
	b := &Broker{
		params:      params,
		logger:      slog.Default().With("module", "backtest_broker"),
		cash:        params.Cash,
		value:       params.Cash,
		feeds:       make(map[string]domain.Feed),
		comminfo:    make(map[string]*commission.Info),
		defaultComm: commission.NewStock(0),
		positions:   make(map[string]*domain.Position),
		credit:      make(map[string]float64),
		interestAt:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddFeed registers the market data for an instrument.
func (b *Broker) AddFeed(feed domain.Feed) {
	b.feeds[feed.Name()] = feed
}

// SetCommission installs a generic policy for instrument, or the default when instrument is empty.
func (b *Broker) SetCommission(rate, margin, mult float64, instrument string) {
	b.AddCommissionInfo(commission.New(commission.Params{
		Commission: rate,
		Margin:     margin,
		Mult:       mult,
		PercAbs:    true,
	}), instrument)
}

// AddCommissionInfo installs info for instrument, or as default when instrument is empty.
func (b *Broker) AddCommissionInfo(info *commission.Info, instrument string) {
	if instrument == "" {
		b.defaultComm = info
		return
	}
	b.comminfo[instrument] = info
}

// CommissionInfo returns the policy applied to instrument.
func (b *Broker) CommissionInfo(instrument string) *commission.Info {
	if info, ok := b.comminfo[instrument]; ok {
		return info
	}
	return b.defaultComm
}

// SetFiller replaces the volume filler. nil fills the whole remainder.
func (b *Broker) SetFiller(f Filler) {
	b.filler = f
}

// SetSlippagePerc configures percentage slippage and disables fixed slippage.
func (b *Broker) SetSlippagePerc(perc float64, slipOpen, slipLimit, slipMatch, slipOut bool) {
	b.params.SlipPerc = perc
	b.params.SlipFixed = 0
	b.params.SlipOpen, b.params.SlipLimit, b.params.SlipMatch, b.params.SlipOut = slipOpen, slipLimit, slipMatch, slipOut
}

// SetSlippageFixed configures fixed slippage and disables percentage slippage.
func (b *Broker) SetSlippageFixed(fixed float64, slipOpen, slipLimit, slipMatch, slipOut bool) {
	b.params.SlipPerc = 0
	b.params.SlipFixed = fixed
	b.params.SlipOpen, b.params.SlipLimit, b.params.SlipMatch, b.params.SlipOut = slipOpen, slipLimit, slipMatch, slipOut
}

// SetCheatOnOpen toggles same-bar open fills.
func (b *Broker) SetCheatOnOpen(on bool) { b.params.CheatOnOpen = on }

// SetCheatOnClose toggles creation-bar close fills.
func (b *Broker) SetCheatOnClose(on bool) { b.params.CheatOnClose = on }

// Params returns the active configuration.
func (b *Broker) Params() Params { return b.params }

// Start resets the fund accounting. The context is unused, a backtest never blocks.
func (b *Broker) Start(ctx context.Context) error {
	b.value = b.cash
	if b.params.FundMode {
		if b.params.FundStartVal <= 0 {
			return fmt.Errorf("fund start value must be positive, got %v", b.params.FundStartVal)
		}
		b.fundValue = b.params.FundStartVal
		b.fundShares = b.cash / b.fundValue
	}
	b.logger.Info("Backtest broker started",
		slog.Float64("cash", b.cash),
		slog.Bool("fund_mode", b.params.FundMode),
	)
	return nil
}

// Stop cancels every order still waiting for execution.
func (b *Broker) Stop() {
	for _, o := range append(append([]*domain.Order(nil), b.newOrders...), b.pending...) {
		b.Cancel(o)
	}
	b.logger.Info("Backtest broker stopped",
		slog.Float64("cash", b.cash),
		slog.Float64("value", b.Value()),
	)
}

// Cash is the free cash balance.
func (b *Broker) Cash() float64 { return b.cash }

// SetCash overrides the cash balance, meant for setup before Start.
func (b *Broker) SetCash(cash float64) {
	b.cash = cash
	b.value = cash
}

// AddCash queues a deposit (or withdrawal when negative) applied on the next bar.
func (b *Broker) AddCash(cash float64) {
	b.cashAdds = append(b.cashAdds, cash)
}

// Value is cash plus the mark-to-market contribution of every position.
func (b *Broker) Value() float64 {
	return b.ValueOf()
}

// ValueOf limits the position part of Value to the given instruments. No
// instruments means all of them.
func (b *Broker) ValueOf(instruments ...string) float64 {
	value := b.cash
	include := func(string) bool { return true }
	if len(instruments) > 0 {
		set := make(map[string]bool, len(instruments))
		for _, i := range instruments {
			set[i] = true
		}
		include = func(i string) bool { return set[i] }
	}

	for inst, pos := range b.positions {
		if pos.Size == 0 || !include(inst) {
			continue
		}
		mark := pos.Price
		if feed, ok := b.feeds[inst]; ok {
			if bar, ok := feed.Current(); ok && bar.Valid() {
				mark = bar.Close
			}
		}
		value += b.positionValue(b.CommissionInfo(inst), *pos, mark)
	}
	return value
}

// FundShares is the number of fund shares outstanding in fund mode.
func (b *Broker) FundShares() float64 { return b.fundShares }

// FundValue is the net asset value per share in fund mode.
func (b *Broker) FundValue() float64 { return b.fundValue }

// Position returns a copy of the instrument position, flat when none exists.
func (b *Broker) Position(instrument string) domain.Position {
	if pos, ok := b.positions[instrument]; ok {
		return *pos
	}
	return domain.Position{}
}

// Positions returns a copy of every position ever opened.
func (b *Broker) Positions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(b.positions))
	for k, v := range b.positions {
		out[k] = *v
	}
	return out
}

func (b *Broker) position(instrument string) *domain.Position {
	pos, ok := b.positions[instrument]
	if !ok {
		pos = &domain.Position{}
		b.positions[instrument] = pos
	}
	return pos
}

// Orders returns snapshots of every submitted order.
func (b *Broker) Orders() []*domain.Order {
	out := make([]*domain.Order, len(b.orders))
	for i, o := range b.orders {
		out[i] = o.Clone()
	}
	return out
}

// OpenOrders returns the live orders of instrument, all instruments when empty.
func (b *Broker) OpenOrders(instrument string) []*domain.Order {
	var out []*domain.Order
	for _, list := range [][]*domain.Order{b.pending, b.newOrders} {
		for _, o := range list {
			if instrument == "" || o.Instrument == instrument {
				out = append(out, o)
			}
		}
	}
	return out
}

// PendingCount is the number of orders still waiting for execution.
func (b *Broker) PendingCount() int {
	return len(b.pending) + len(b.newOrders)
}

// Notification pops the oldest order snapshot.
func (b *Broker) Notification() *domain.Order {
	if len(b.notifs) == 0 {
		return nil
	}
	o := b.notifs[0]
	b.notifs[0] = nil
	b.notifs = b.notifs[1:]
	return o
}

// HasNotifications reports whether Notification would return an order.
func (b *Broker) HasNotifications() bool {
	return len(b.notifs) > 0
}

func (b *Broker) notify(o *domain.Order) {
	snap := o.Clone()
	b.notifs = append(b.notifs, snap)
	if b.observer != nil {
		b.observer.OnOrder(snap)
	}
}

// Submit admits the order. It is Rejected synchronously when the instrument
// is unknown or, with CheckSubmit, when cash cannot carry it.
func (b *Broker) Submit(o *domain.Order) *domain.Order {
	if o.Status != domain.StatusCreated {
		b.logger.Warn("Order already submitted", slog.Uint64("ref", o.Ref), slog.String("status", o.Status.String()))
		return o
	}
	b.nextRef++
	o.Ref = b.nextRef
	o.Executed.Remaining = o.Size
	b.orders = append(b.orders, o)

	feed, ok := b.feeds[o.Instrument]
	if !ok {
		b.reject(o, domain.ErrUnknownInstrument.Error())
		return o
	}
	bar, _ := feed.Current()
	b.stampCreated(o, bar)

	if o.Size == 0 {
		b.reject(o, "zero size")
		return o
	}

	if b.params.CheckSubmit {
		if err := b.checkCash(o, bar); err != nil {
			b.reject(o, err.Error())
			return o
		}
	}

	_ = o.Transition(domain.StatusSubmitted)
	b.notify(o)
	_ = o.Transition(domain.StatusAccepted)
	b.notify(o)
	b.newOrders = append(b.newOrders, o)

	b.logger.Debug("Order accepted",
		slog.Uint64("ref", o.Ref),
		slog.String("instrument", o.Instrument),
		slog.String("kind", o.Kind.String()),
		slog.Float64("size", o.Size),
	)
	return o
}

func (b *Broker) stampCreated(o *domain.Order, bar domain.Bar) {
	o.Created.Time = bar.Time
	o.Created.Close = bar.Close

	switch o.Kind {
	case domain.KindMarket, domain.KindClose:
		o.Created.Price = bar.Close
	case domain.KindStopTrail, domain.KindStopTrailLimit:
		if o.Price != 0 {
			o.Created.Price = o.Price
			if o.Kind == domain.KindStopTrailLimit && o.PriceLimit == 0 {
				o.PriceLimit = o.Price + o.LimitOffset
			}
		} else {
			o.TrailAdjust(bar.Close)
		}
	default:
		o.Created.Price = o.Price
	}

	if o.ValidDay && o.Valid.IsZero() && !bar.Time.IsZero() {
		y, m, d := bar.Time.Date()
		o.Valid = time.Date(y, m, d, 23, 59, 59, 999999999, bar.Time.Location())
	}
}

func (b *Broker) reject(o *domain.Order, reason string) {
	if err := o.Reject(reason); err != nil {
		b.logger.Error("Reject failed", slog.Any("error", err))
		return
	}
	b.logger.Debug("Order rejected", slog.Uint64("ref", o.Ref), slog.String("reason", reason))
	b.notify(o)
	b.ocoCheck(o)
}

// estimatePrice is the price the cash check assumes for o.
func (b *Broker) estimatePrice(o *domain.Order, bar domain.Bar) float64 {
	switch o.Kind {
	case domain.KindMarket:
		if b.params.CheatOnOpen && bar.Open > 0 {
			return bar.Open
		}
		return bar.Close
	case domain.KindClose:
		return bar.Close
	case domain.KindLimit:
		return o.Price
	case domain.KindStopLimit, domain.KindStopTrailLimit:
		return o.PriceLimit
	default:
		return o.Created.Price
	}
}

// checkCash pseudo-executes every accepted order of this bar plus o against
// copies of cash and positions.
func (b *Broker) checkCash(o *domain.Order, bar domain.Bar) error {
	cash := b.cash
	positions := make(map[string]domain.Position)
	pos := func(inst string) domain.Position {
		p, ok := positions[inst]
		if !ok {
			p = b.Position(inst)
		}
		return p
	}

	for _, queued := range append(append([]*domain.Order(nil), b.newOrders...), o) {
		qbar, _ := b.feeds[queued.Instrument].Current()
		price := b.estimatePrice(queued, qbar)
		if price <= 0 || math.IsNaN(price) {
			continue
		}
		info := b.CommissionInfo(queued.Instrument)
		p := pos(queued.Instrument)
		s := b.settle(info, p, queued.Executed.Remaining, price, cash)
		if s.marginCall {
			if queued == o {
				return fmt.Errorf("%w: need more than %.2f", domain.ErrInsufficientCash, cash)
			}
			continue
		}
		cash += s.cash
		p.Update(s.execSize(), price, qbar.Time)
		positions[queued.Instrument] = p
	}
	return nil
}

// Cancel removes a live order from the book. It reports false when the order
// already reached a terminal state.
func (b *Broker) Cancel(o *domain.Order) bool {
	if !b.cancel(o) {
		return false
	}
	b.ocoCheck(o)
	return true
}

func (b *Broker) cancel(o *domain.Order) bool {
	if !o.Alive() || o.Status == domain.StatusCreated {
		return false
	}
	if !b.remove(o) {
		return false
	}
	if err := o.Transition(domain.StatusCanceled); err != nil {
		b.logger.Error("Cancel failed", slog.Any("error", err))
		return false
	}
	b.logger.Debug("Order canceled", slog.Uint64("ref", o.Ref))
	b.notify(o)
	b.bracketCheck(o)
	return true
}

func (b *Broker) remove(o *domain.Order) bool {
	for _, list := range []*[]*domain.Order{&b.pending, &b.newOrders} {
		for i, p := range *list {
			if p == o {
				*list = append((*list)[:i], (*list)[i+1:]...)
				return true
			}
		}
	}
	return false
}

// ocoCheck cancels the live siblings of o once it filled or finished.
func (b *Broker) ocoCheck(o *domain.Order) {
	group := o.OCO
	if group == 0 {
		group = o.Ref
	}
	for _, other := range b.OpenOrders("") {
		if other == o || !other.Alive() {
			continue
		}
		if other.OCO == group || (other.Ref == group && o.OCO != 0) {
			b.cancel(other)
		}
	}
}

// bracketCheck cancels children of a parent that ended without completing.
func (b *Broker) bracketCheck(parent *domain.Order) {
	if parent.Status == domain.StatusCompleted || parent.Alive() {
		return
	}
	for _, child := range b.OpenOrders("") {
		if child.Parent == parent.Ref {
			b.cancel(child)
		}
	}
}

func (b *Broker) orderByRef(ref uint64) *domain.Order {
	if ref == 0 || ref > uint64(len(b.orders)) {
		return nil
	}
	return b.orders[ref-1]
}

// Next advances one bar: applies queued cash, promotes last bar's orders,
// charges interest, matches pending orders and refreshes the value.
func (b *Broker) Next() {
	for _, c := range b.cashAdds {
		b.cash += c
		if b.params.FundMode && b.fundValue > 0 {
			b.fundShares += c / b.fundValue
		}
	}
	b.cashAdds = b.cashAdds[:0]

	b.pending = append(b.pending, b.newOrders...)
	b.newOrders = nil

	b.chargeInterest()

	for _, o := range append([]*domain.Order(nil), b.pending...) {
		if !o.Alive() {
			continue
		}
		b.process(o)
	}

	alive := b.pending[:0]
	for _, o := range b.pending {
		if o.Alive() {
			alive = append(alive, o)
		}
	}
	b.pending = alive

	b.value = b.Value()
	if b.params.FundMode && b.fundShares > 0 {
		b.fundValue = b.value / b.fundShares
	}
	if b.observer != nil {
		b.observer.OnAccount(b.cash, b.value)
	}
}

func (b *Broker) process(o *domain.Order) {
	feed, ok := b.feeds[o.Instrument]
	if !ok {
		return
	}
	bar, ok := feed.Current()
	if !ok || !bar.Valid() {
		return
	}

	if o.Expired(bar.Time) {
		b.remove(o)
		_ = o.Transition(domain.StatusExpired)
		b.logger.Debug("Order expired", slog.Uint64("ref", o.Ref))
		b.notify(o)
		b.ocoCheck(o)
		b.bracketCheck(o)
		return
	}

	if parent := b.orderByRef(o.Parent); parent != nil && parent.Status != domain.StatusCompleted {
		// children wait for the parent, bracketCheck handles a failed parent
		return
	}

	if !bar.Time.After(o.Created.Time) && !b.params.CheatOnOpen {
		return
	}

	b.tryExec(o, bar)
}

// chargeInterest debits borrow costs for every open position.
func (b *Broker) chargeInterest() {
	for inst, pos := range b.positions {
		if pos.Size == 0 {
			delete(b.interestAt, inst)
			continue
		}
		info := b.CommissionInfo(inst)
		if info.Interest == 0 {
			continue
		}
		feed, ok := b.feeds[inst]
		if !ok {
			continue
		}
		bar, ok := feed.Current()
		if !ok || !bar.Valid() {
			continue
		}
		last, ok := b.interestAt[inst]
		if !ok {
			last = pos.Updated
		}
		days := daysBetween(last, bar.Time)
		if days <= 0 {
			continue
		}
		charge := info.CreditInterest(pos.Size, bar.Close, float64(days))
		b.cash -= charge
		b.credit[inst] += charge
		b.interestAt[inst] = bar.Time
	}
}

func daysBetween(from, to time.Time) int {
	y1, m1, d1 := from.Date()
	y2, m2, d2 := to.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	c := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(c.Sub(a).Hours() / 24)
}

// execute fills o at price on bar, honoring the filler and the cash left.
func (b *Broker) execute(o *domain.Order, price float64, dt time.Time, bar domain.Bar) {
	if price <= 0 || math.IsNaN(price) {
		b.logger.Debug("Execution skipped",
			slog.Uint64("ref", o.Ref),
			slog.Any("error", fmt.Errorf("%w: %v", domain.ErrInvalidPrice, price)),
		)
		return
	}

	size := o.Executed.Remaining
	if b.filler != nil {
		fill := math.Min(math.Abs(b.filler.Fill(o, price, bar)), math.Abs(size))
		if fill <= 0 {
			return
		}
		size = math.Copysign(fill, o.Size)
	}

	info := b.CommissionInfo(o.Instrument)
	pos := b.position(o.Instrument)
	s := b.settle(info, *pos, size, price, b.cash)

	if exec := s.execSize(); exec != 0 {
		psize, pprice, _, _ := pos.PseudoUpdate(exec, price)

		closedComm := s.closedComm
		if s.closed != 0 && b.params.Int2PnL {
			closedComm += b.credit[o.Instrument]
		}

		bit := domain.ExecutionBit{
			Time:        dt,
			Size:        exec,
			Price:       price,
			Closed:      -s.closed,
			ClosedValue: s.closedValue,
			ClosedComm:  closedComm,
			Opened:      s.opened,
			OpenedValue: s.openedValue,
			OpenedComm:  s.openedComm,
			PnL:         s.pnl,
			PSize:       psize,
			PPrice:      pprice,
		}
		if err := o.Execute(bit); err != nil {
			b.logger.Error("Execution rejected by order", slog.Any("error", err))
			return
		}

		// The order accepted the fill, settle it.
		b.cash += s.cash
		if pos.Size == 0 {
			b.interestAt[o.Instrument] = dt
		}
		pos.Update(exec, price, dt)
		if s.closed != 0 && b.params.Int2PnL {
			b.credit[o.Instrument] = 0
		}
		o.Executed.Margin = info.GetMargin(price)

		b.logger.Debug("Order executed",
			slog.Uint64("ref", o.Ref),
			slog.Float64("size", exec),
			slog.Float64("price", price),
			slog.String("status", o.Status.String()),
		)
		b.notify(o)
		b.ocoCheck(o)
	}

	if s.marginCall {
		b.remove(o)
		if err := o.Transition(domain.StatusMargin); err != nil {
			b.logger.Error("Margin transition failed", slog.Any("error", err))
			return
		}
		b.logger.Debug("Order margin call", slog.Uint64("ref", o.Ref), slog.Float64("cash", b.cash))
		b.notify(o)
		b.ocoCheck(o)
		b.bracketCheck(o)
	}
}
