package domain

import (
	"math"
	"time"
)

// Bar is one OHLCV period of an instrument.
type Bar struct {
	Time         time.Time `json:"time"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	OpenInterest float64   `json:"open_interest"`
}

// Valid reports whether every price is positive and not NaN.
func (b Bar) Valid() bool {
	for _, p := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if p <= 0 || math.IsNaN(p) {
			return false
		}
	}
	return true
}

// Feed exposes the current bar of one instrument to a broker.
type Feed interface {
	Name() string
	Current() (Bar, bool)
}

// SeriesFeed replays a fixed slice of bars. Advance moves the cursor.
type SeriesFeed struct {
	name string
	bars []Bar
	pos  int
}

// NewSeriesFeed creates a feed positioned before the first bar.
func NewSeriesFeed(name string, bars []Bar) *SeriesFeed {
	return &SeriesFeed{name: name, bars: bars, pos: -1}
}

func (f *SeriesFeed) Name() string { return f.name }

// Current returns the bar under the cursor.
func (f *SeriesFeed) Current() (Bar, bool) {
	if f.pos < 0 || f.pos >= len(f.bars) {
		return Bar{}, false
	}
	return f.bars[f.pos], true
}

// Advance moves to the next bar and reports whether one exists.
func (f *SeriesFeed) Advance() bool {
	if f.pos+1 >= len(f.bars) {
		return false
	}
	f.pos++
	return true
}

// Peek returns the bar after the cursor without moving.
func (f *SeriesFeed) Peek() (Bar, bool) {
	if f.pos+1 >= len(f.bars) {
		return Bar{}, false
	}
	return f.bars[f.pos+1], true
}

// Len is the total number of bars.
func (f *SeriesFeed) Len() int { return len(f.bars) }
