// Package commission computes commission, margin, cost and profit for one
// instrument class. An Info is immutable once handed to a broker.
package commission

import (
	"fmt"
	"math"
)

// Kind selects how the commission rate is applied.
type Kind int

const (
	// Percentage charges rate per unit of notional (stocklike) or per contract.
	Percentage Kind = iota
	// Fixed charges the rate once per fill.
	Fixed
)

func (k Kind) String() string {
	if k == Fixed {
		return "fixed"
	}
	return "percentage"
}

// Class is the instrument family. It decides the margin formula.
type Class int

const (
	Generic Class = iota
	Stock
	Futures
	Forex
	Crypto
)

var classNames = [...]string{"generic", "stock", "futures", "forex", "crypto"}

func (c Class) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return "unknown"
	}
	return classNames[c]
}

// ParseClass maps a configuration name to a Class.
func ParseClass(name string) (Class, error) {
	for i, n := range classNames {
		if n == name {
			return Class(i), nil
		}
	}
	return Generic, fmt.Errorf("unknown commission class %q", name)
}

// Info is the commission and margin policy of an instrument.
type Info struct {
	Class      Class
	Commission float64
	Margin     float64 // per unit, ignored for stocklike
	Mult       float64
	StockLike  bool
	Kind       Kind
	Leverage   float64
	Minimum    float64

	// Interest is the yearly rate charged on short stock and leveraged
	// exposure. InterestLong extends the charge to long positions.
	Interest     float64
	InterestLong bool
}

// Params is the configuration view of an Info.
type Params struct {
	Class      Class
	Commission float64
	Margin     float64
	Mult       float64
	Kind       Kind
	// PercAbs false means Commission is given in percent (0.1 = 0.1%).
	PercAbs      bool
	StockLike    *bool
	Leverage     float64
	Minimum      float64
	Interest     float64
	InterestLong bool
}

// New builds an Info from params, filling class defaults.
func New(p Params) *Info {
	info := &Info{
		Class:        p.Class,
		Commission:   p.Commission,
		Margin:       p.Margin,
		Mult:         p.Mult,
		Kind:         p.Kind,
		Leverage:     p.Leverage,
		Minimum:      p.Minimum,
		Interest:     p.Interest,
		InterestLong: p.InterestLong,
	}
	if info.Mult == 0 {
		info.Mult = 1
	}
	if info.Leverage == 0 {
		info.Leverage = 1
	}

	switch p.Class {
	case Stock:
		info.StockLike = true
	case Futures, Forex, Crypto:
		info.StockLike = false
	default:
		// A generic policy with a margin is a futures-style contract.
		info.StockLike = p.Margin == 0
	}
	if p.StockLike != nil {
		info.StockLike = *p.StockLike
	}

	if info.Kind == Percentage && !p.PercAbs {
		info.Commission /= 100
	}
	return info
}

// NewStock is a stocklike percentage policy with rate as a fraction.
func NewStock(rate float64) *Info {
	return New(Params{Class: Stock, Commission: rate, PercAbs: true})
}

// NewFutures charges perContract on every contract traded.
func NewFutures(perContract, margin, mult float64) *Info {
	return New(Params{Class: Futures, Commission: perContract, Margin: margin, Mult: mult, PercAbs: true})
}

// NewForex is a leveraged forex policy.
func NewForex(perUnit, margin, mult, leverage float64) *Info {
	return New(Params{Class: Forex, Commission: perUnit, Margin: margin, Mult: mult, Leverage: leverage, PercAbs: true})
}

// NewCrypto is a leveraged digital currency policy charging rate on notional.
// interest is the yearly borrow rate applied to both sides.
func NewCrypto(rate, leverage, interest float64) *Info {
	return New(Params{
		Class:        Crypto,
		Commission:   rate,
		Leverage:     leverage,
		Interest:     interest,
		InterestLong: true,
		PercAbs:      true,
	})
}

// GetCommission returns the commission of a fill, floored at Minimum.
func (c *Info) GetCommission(size, price float64) float64 {
	if size == 0 || price <= 0 {
		return 0
	}

	var comm float64
	switch {
	case c.Kind == Fixed:
		comm = c.Commission
	case c.StockLike || c.Class == Crypto:
		comm = math.Abs(size) * price * c.Commission
	default:
		comm = math.Abs(size) * c.Commission
	}

	if c.Minimum > 0 && comm < c.Minimum {
		comm = c.Minimum
	}
	return comm
}

// GetMargin returns the collateral per unit at price.
func (c *Info) GetMargin(price float64) float64 {
	if c.StockLike {
		return 0
	}
	switch c.Class {
	case Futures:
		return c.Margin * c.Mult
	case Forex:
		if c.Leverage <= 0 {
			return c.Margin * c.Mult
		}
		return c.Margin * c.Mult / c.Leverage
	case Crypto:
		return price * c.Mult / c.Leverage
	}
	return c.Margin
}

// OperationCost is the cash needed to open size at price.
func (c *Info) OperationCost(size, price float64) float64 {
	if c.StockLike {
		cost := math.Abs(size) * price
		if c.Leverage > 1 {
			cost /= c.Leverage
		}
		return cost
	}
	return math.Abs(size) * c.GetMargin(price)
}

// ValueSize is the signed value of size at price.
func (c *Info) ValueSize(size, price float64) float64 {
	if c.StockLike {
		return size * price
	}
	return size * c.GetMargin(price)
}

// ProfitAndLoss of size moving from price to newPrice.
func (c *Info) ProfitAndLoss(size, price, newPrice float64) float64 {
	if size == 0 {
		return 0
	}
	pnl := size * (newPrice - price)
	if !c.StockLike {
		pnl *= c.Mult
	}
	return pnl
}

// CashAdjust is the mark-to-market cash flow of a margined position.
func (c *Info) CashAdjust(size, price, newPrice float64) float64 {
	if c.StockLike {
		return 0
	}
	return c.ProfitAndLoss(size, price, newPrice)
}

// GetSize returns the whole units cash can open at price.
func (c *Info) GetSize(price, cash float64) float64 {
	if price <= 0 {
		return 0
	}
	if c.StockLike {
		return math.Floor(cash / price)
	}
	margin := c.GetMargin(price)
	if margin <= 0 {
		return 0
	}
	return math.Floor(cash / margin)
}

// CreditInterest is the borrow cost of holding size at price for days.
func (c *Info) CreditInterest(size, price float64, days float64) float64 {
	if c.Interest == 0 || days <= 0 || size == 0 {
		return 0
	}
	if size > 0 && !c.InterestLong {
		return 0
	}
	return math.Abs(size) * price * c.Interest * days / 365
}

func (c *Info) String() string {
	return fmt.Sprintf("commission{class=%s kind=%s rate=%g margin=%g mult=%g stocklike=%t leverage=%g min=%g}",
		c.Class, c.Kind, c.Commission, c.Margin, c.Mult, c.StockLike, c.Leverage, c.Minimum)
}
