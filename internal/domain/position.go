package domain

import (
	"math"
	"time"
)

// sizeEpsilon absorbs float residue when fractional sizes net to zero.
const sizeEpsilon = 1e-9

// Position is the running exposure to one instrument.
//
// Opened carries the sign of the new exposure and Closed the sign of the
// exposure that was closed, so Opened - Closed always equals the size change.
type Position struct {
	Size      float64   `json:"size"`
	Price     float64   `json:"price"`
	PriceOrig float64   `json:"price_orig"` // price before the last update
	Opened    float64   `json:"opened"`
	Closed    float64   `json:"closed"`
	Updated   time.Time `json:"updated"`
}

// IsLong reports a positive exposure.
func (p Position) IsLong() bool { return p.Size > 0 }

// IsShort reports a negative exposure.
func (p Position) IsShort() bool { return p.Size < 0 }

// IsFlat reports no exposure.
func (p Position) IsFlat() bool { return p.Size == 0 }

// Update applies a fill of size at price and returns the new size and
// price together with the opened and closed amounts.
func (p *Position) Update(size, price float64, dt time.Time) (newSize, newPrice, opened, closed float64) {
	old := p.Size
	p.Updated = dt
	p.PriceOrig = p.Price
	p.Size = old + size
	if math.Abs(p.Size) < sizeEpsilon {
		p.Size = 0
	}

	switch {
	case p.Size == 0:
		opened, closed = 0, old
		p.Price = 0
	case old == 0:
		opened, closed = size, 0
		p.Price = price
	case (old > 0) == (size > 0):
		opened, closed = size, 0
		p.Price = (p.Price*old + size*price) / p.Size
	case (old > 0) == (p.Size > 0):
		// partial close keeps the average price
		opened, closed = 0, -size
	default:
		opened, closed = p.Size, old
		p.Price = price
	}

	p.Opened, p.Closed = opened, closed
	return p.Size, p.Price, opened, closed
}

// PseudoUpdate computes Update on a copy and leaves p untouched.
func (p Position) PseudoUpdate(size, price float64) (newSize, newPrice, opened, closed float64) {
	return p.Update(size, price, p.Updated)
}
