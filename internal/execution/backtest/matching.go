package backtest

import (
	"math"

	"quantbroker/internal/domain"
)

// slipUp raises price for a buy. ok is false when the slipped price cannot
// be matched on this bar.
func (b *Broker) slipUp(pmax, price float64, doslip, lim bool) (float64, bool) {
	if !doslip {
		return price, true
	}
	var pslip float64
	switch {
	case b.params.SlipPerc != 0:
		pslip = price * (1 + b.params.SlipPerc)
	case b.params.SlipFixed != 0:
		pslip = price + b.params.SlipFixed
	default:
		return price, true
	}

	if pslip <= pmax {
		return pslip, true
	}
	if b.params.SlipMatch {
		return pmax, true
	}
	if b.params.SlipOut && !lim {
		return pslip, true
	}
	if lim && b.params.SlipLimit {
		return price, true
	}
	return 0, false
}

// slipDown lowers price for a sell, mirroring slipUp.
func (b *Broker) slipDown(pmin, price float64, doslip, lim bool) (float64, bool) {
	if !doslip {
		return price, true
	}
	var pslip float64
	switch {
	case b.params.SlipPerc != 0:
		pslip = price * (1 - b.params.SlipPerc)
	case b.params.SlipFixed != 0:
		pslip = price - b.params.SlipFixed
	default:
		return price, true
	}

	if pslip >= pmin {
		return pslip, true
	}
	if b.params.SlipMatch {
		return pmin, true
	}
	if b.params.SlipOut && !lim {
		return pslip, true
	}
	if lim && b.params.SlipLimit {
		return price, true
	}
	return 0, false
}

func (b *Broker) slip(o *domain.Order, bound, price float64, doslip, lim bool) (float64, bool) {
	if o.IsBuy() {
		return b.slipUp(bound, price, doslip, lim)
	}
	return b.slipDown(bound, price, doslip, lim)
}

// tryExec dispatches on the order kind.
func (b *Broker) tryExec(o *domain.Order, bar domain.Bar) {
	switch o.Kind {
	case domain.KindMarket:
		b.tryMarket(o, bar)
	case domain.KindClose:
		b.execute(o, bar.Close, bar.Time, bar)
	case domain.KindLimit:
		b.tryLimit(o, bar, o.Price)
	case domain.KindStop, domain.KindStopTrail:
		b.tryStop(o, bar)
	case domain.KindStopLimit, domain.KindStopTrailLimit:
		if o.Triggered {
			b.tryLimit(o, bar, o.PriceLimit)
			return
		}
		b.tryStopLimit(o, bar)
	}
}

func (b *Broker) tryMarket(o *domain.Order, bar domain.Bar) {
	price, dt := bar.Open, bar.Time
	if b.params.CheatOnClose {
		price, dt = o.Created.Close, o.Created.Time
	}
	bound := bar.High
	if !o.IsBuy() {
		bound = bar.Low
	}
	if p, ok := b.slip(o, bound, price, b.params.SlipOpen, false); ok {
		b.execute(o, p, dt, bar)
	}
}

// tryLimit fills at the open when it gaps through the limit, else at the
// limit when the bar range touches it.
func (b *Broker) tryLimit(o *domain.Order, bar domain.Bar, plimit float64) {
	if o.IsBuy() {
		switch {
		case plimit >= bar.Open:
			pmax := math.Min(bar.High, plimit)
			if p, ok := b.slipUp(pmax, bar.Open, b.params.SlipOpen, true); ok {
				b.execute(o, p, bar.Time, bar)
			}
		case plimit >= bar.Low:
			b.execute(o, plimit, bar.Time, bar)
		}
		return
	}

	switch {
	case plimit <= bar.Open:
		pmin := math.Max(bar.Low, plimit)
		if p, ok := b.slipDown(pmin, bar.Open, b.params.SlipOpen, true); ok {
			b.execute(o, p, bar.Time, bar)
		}
	case plimit <= bar.High:
		b.execute(o, plimit, bar.Time, bar)
	}
}

// tryStop fills at the open on a gap through the trigger, else at the trigger.
func (b *Broker) tryStop(o *domain.Order, bar domain.Bar) {
	pstop := o.Created.Price
	if o.IsBuy() {
		switch {
		case bar.Open >= pstop:
			if p, ok := b.slipUp(bar.High, bar.Open, b.params.SlipOpen, false); ok {
				b.execute(o, p, bar.Time, bar)
			}
		case bar.High >= pstop:
			if p, ok := b.slipUp(bar.High, pstop, true, false); ok {
				b.execute(o, p, bar.Time, bar)
			}
		}
	} else {
		switch {
		case bar.Open <= pstop:
			if p, ok := b.slipDown(bar.Low, bar.Open, b.params.SlipOpen, false); ok {
				b.execute(o, p, bar.Time, bar)
			}
		case bar.Low <= pstop:
			if p, ok := b.slipDown(bar.Low, pstop, true, false); ok {
				b.execute(o, p, bar.Time, bar)
			}
		}
	}

	if o.Alive() && o.Kind == domain.KindStopTrail {
		o.TrailAdjust(bar.Close)
	}
}

// tryStopLimit arms the limit leg once the trigger is crossed. Within the
// triggering bar only fills whose timing is unambiguous are taken.
func (b *Broker) tryStopLimit(o *domain.Order, bar domain.Bar) {
	pstop, plimit := o.Created.Price, o.PriceLimit
	if o.IsBuy() {
		switch {
		case bar.Open >= pstop:
			o.Triggered = true
			b.tryLimit(o, bar, plimit)
		case bar.High >= pstop:
			o.Triggered = true
			switch {
			case plimit >= pstop:
				if p, ok := b.slipUp(math.Min(bar.High, plimit), pstop, true, true); ok {
					b.execute(o, p, bar.Time, bar)
				}
			case bar.Open > bar.Close && plimit >= bar.Close:
				// rose to the trigger then fell through the limit
				b.execute(o, plimit, bar.Time, bar)
			}
		}
	} else {
		switch {
		case bar.Open <= pstop:
			o.Triggered = true
			b.tryLimit(o, bar, plimit)
		case bar.Low <= pstop:
			o.Triggered = true
			switch {
			case plimit <= pstop:
				if p, ok := b.slipDown(math.Max(bar.Low, plimit), pstop, true, true); ok {
					b.execute(o, p, bar.Time, bar)
				}
			case bar.Open < bar.Close && plimit <= bar.Close:
				b.execute(o, plimit, bar.Time, bar)
			}
		}
	}

	if o.Alive() && !o.Triggered && o.Kind == domain.KindStopTrailLimit {
		o.TrailAdjust(bar.Close)
	}
}
