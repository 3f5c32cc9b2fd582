package backtest

import (
	"math"

	"quantbroker/internal/domain"
)

// Filler decides how much of an order fills on the current bar.
// The returned size is unsigned and is capped by the broker at the remaining size.
type Filler interface {
	Fill(o *domain.Order, price float64, bar domain.Bar) float64
}

// FillerFunc adapts a function to Filler.
type FillerFunc func(o *domain.Order, price float64, bar domain.Bar) float64

func (f FillerFunc) Fill(o *domain.Order, price float64, bar domain.Bar) float64 {
	return f(o, price, bar)
}

// FixedSize fills at most Size per bar and never more than the bar volume.
// Size 0 means only the volume limits the fill.
type FixedSize struct {
	Size float64
}

func (f FixedSize) Fill(o *domain.Order, price float64, bar domain.Bar) float64 {
	size := math.Min(bar.Volume, math.Abs(o.Executed.Remaining))
	if f.Size > 0 {
		size = math.Min(size, f.Size)
	}
	return size
}

// FixedBarPerc fills up to Perc percent of the bar volume.
type FixedBarPerc struct {
	Perc float64
}

func (f FixedBarPerc) Fill(o *domain.Order, price float64, bar domain.Bar) float64 {
	size := math.Floor(bar.Volume * f.Perc / 100)
	return math.Min(size, math.Abs(o.Executed.Remaining))
}

// BarPointPerc spreads the bar volume uniformly over the price points
// between low and high, MinMov apart, and fills Perc percent of one point.
type BarPointPerc struct {
	MinMov float64
	Perc   float64
}

func (f BarPointPerc) Fill(o *domain.Order, price float64, bar domain.Bar) float64 {
	minmov := f.MinMov
	if minmov <= 0 {
		minmov = 0.01
	}
	parts := math.Floor((bar.High - bar.Low + minmov) / minmov)
	if parts < 1 {
		parts = 1
	}
	alloc := math.Floor(bar.Volume / parts * f.Perc / 100)
	return math.Min(alloc, math.Abs(o.Executed.Remaining))
}
