package strategy

import (
	"log/slog"
	"time"

	"quantbroker/internal/domain"
)

// smaState is the price history of one instrument.
// OPTIMIZED: Uses a Ring Buffer to ensure Zero-Alloc in the hotpath.
type smaState struct {
	prices []float64
	head   int     // Current write position
	count  int     // Number of elements filled
	sum    float64 // Running sum for the longest period

	prevShortSMA float64
	prevLongSMA  float64
	lastBar      time.Time
}

// SMACross buys on a golden cross and closes the long on a dead cross.
// It is stateful and deterministic.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	size        float64

	instruments []string
	states      map[string]*smaState
	pending     map[string]uint64 // instrument -> ref of the live order
	logger      *slog.Logger
}

// NewSMACross creates the strategy for instruments.
func NewSMACross(instruments []string, shortPeriod, longPeriod int, size float64) *SMACross {
	if shortPeriod >= longPeriod {
		panic("SMACross: shortPeriod must be less than longPeriod")
	}
	s := &SMACross{
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		size:        size,
		instruments: instruments,
		states:      make(map[string]*smaState, len(instruments)),
		pending:     make(map[string]uint64),
		logger:      slog.Default().With("module", "sma_cross"),
	}
	for _, inst := range instruments {
		s.states[inst] = &smaState{prices: make([]float64, longPeriod)} // Fixed size allocation
	}
	return s
}

// OnBar feeds one closing price and returns the resulting signals.
func (s *SMACross) OnBar(instrument string, price float64) []Action {
	st, ok := s.states[instrument]
	if !ok {
		return nil
	}

	// If full, subtract the oldest value from sum before overwriting
	if st.count == s.longPeriod {
		st.sum -= st.prices[st.head] // head points to the oldest value when full
	}

	st.prices[st.head] = price
	st.sum += price
	st.head = (st.head + 1) % s.longPeriod

	if st.count < s.longPeriod {
		st.count++
	}
	if st.count < s.longPeriod {
		return nil
	}

	currLongSMA := st.sum / float64(s.longPeriod)
	currShortSMA := s.shortSMA(st)

	var actions []Action

	if st.prevShortSMA != 0 && st.prevLongSMA != 0 {
		// Golden Cross: Short goes above Long
		if st.prevShortSMA <= st.prevLongSMA && currShortSMA > currLongSMA {
			actions = append(actions, Action{Type: ActionBuy, Instrument: instrument, Price: price, Size: s.size})
		}

		// Dead Cross: Short goes below Long
		if st.prevShortSMA >= st.prevLongSMA && currShortSMA < currLongSMA {
			actions = append(actions, Action{Type: ActionSell, Instrument: instrument, Price: price, Size: s.size})
		}
	}

	st.prevShortSMA = currShortSMA
	st.prevLongSMA = currLongSMA
	return actions
}

// shortSMA walks backwards from head, which points to the next write slot.
func (s *SMACross) shortSMA(st *smaState) float64 {
	var sum float64
	idx := st.head
	for i := 0; i < s.shortPeriod; i++ {
		idx--
		if idx < 0 {
			idx = s.longPeriod - 1
		}
		sum += st.prices[idx]
	}
	return sum / float64(s.shortPeriod)
}

// Next turns the signals of fresh bars into market orders. An instrument
// with a live order is left alone until that order is done.
func (s *SMACross) Next(env Env) {
	for _, inst := range s.instruments {
		st := s.states[inst]
		bar, ok := env.Bar(inst)
		if !ok || !bar.Time.After(st.lastBar) {
			continue
		}
		st.lastBar = bar.Time

		for _, action := range s.OnBar(inst, bar.Close) {
			if _, busy := s.pending[inst]; busy {
				continue
			}
			pos := env.Broker.Position(inst).Size

			var size float64
			switch action.Type {
			case ActionBuy:
				if pos > 0 {
					continue
				}
				size = action.Size - pos
			case ActionSell:
				if pos <= 0 {
					continue
				}
				size = -pos
			}

			o := env.Broker.Submit(domain.NewOrder(inst, size, domain.KindMarket, 0))
			s.logger.Info("STRATEGY_ACTION",
				slog.String("action", action.Type.String()),
				slog.String("instrument", inst),
				slog.Float64("size", size),
				slog.Float64("close", bar.Close),
			)
			if o.Alive() {
				s.pending[inst] = o.Ref
			}
		}
	}
}

// NotifyOrder releases the instrument once its order is done.
func (s *SMACross) NotifyOrder(o *domain.Order) {
	if o.Alive() {
		return
	}
	if ref, ok := s.pending[o.Instrument]; ok && ref == o.Ref {
		delete(s.pending, o.Instrument)
	}
	if o.Status == domain.StatusCompleted {
		s.logger.Info("Order completed",
			slog.Uint64("ref", o.Ref),
			slog.String("instrument", o.Instrument),
			slog.Float64("size", o.Executed.Size),
			slog.Float64("price", o.Executed.Price),
			slog.Float64("pnl", o.Executed.PnL),
		)
	}
}
