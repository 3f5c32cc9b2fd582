package backtest

import (
	"math"

	"quantbroker/internal/commission"
	"quantbroker/internal/domain"
)

// Cash model
//
// Cash never carries unrealized profit. Opening exposure moves cash by
// openFlow and closing it returns closeFlow, which realizes the profit.
// The value of a position is closeFlow at the mark price, so
// value = cash + sum(closeFlow(size, avg, mark)) holds after every fill:
//   stocklike:  size*mark
//   margined:   |size|*margin + unrealized pnl

// openFlow is the cash consumed when opening q (position sign) at price.
func (b *Broker) openFlow(info *commission.Info, q, price float64) float64 {
	if !info.StockLike {
		return math.Abs(q) * info.GetMargin(price)
	}
	if q > 0 {
		if info.Leverage > 1 {
			return q * price / info.Leverage
		}
		return q * price
	}
	if b.params.ShortCash {
		return q * price
	}
	return -q * price
}

// closeFlow is the cash released when closing q (position sign) held at avg.
func (b *Broker) closeFlow(info *commission.Info, q, avg, price float64) float64 {
	pnl := info.ProfitAndLoss(q, avg, price)
	if !info.StockLike {
		return math.Abs(q)*info.GetMargin(avg) + pnl
	}
	if q > 0 {
		if info.Leverage > 1 {
			return q*avg/info.Leverage + pnl
		}
		return q * price
	}
	if b.params.ShortCash {
		return q * price
	}
	return -q*avg + pnl
}

// settlement is the outcome of applying one fill to a position.
type settlement struct {
	cash        float64 // cash delta including commissions
	closed      float64 // position sign
	opened      float64 // position sign
	closedValue float64
	closedComm  float64
	openedValue float64
	openedComm  float64
	pnl         float64
	// marginCall is set when the opening leg did not fit in cash and was dropped.
	marginCall bool
}

// execSize is the size that actually trades, in order sign.
func (s settlement) execSize() float64 {
	return s.opened - s.closed
}

// settle prices a fill of size at price against pos without mutating anything.
// cash is the balance available before the fill.
func (b *Broker) settle(info *commission.Info, pos domain.Position, size, price, cash float64) settlement {
	_, _, opened, closed := pos.PseudoUpdate(size, price)

	var s settlement
	if closed != 0 {
		s.closed = closed
		s.closedValue = info.OperationCost(closed, pos.Price)
		s.pnl = info.ProfitAndLoss(closed, pos.Price, price)
		s.closedComm = info.GetCommission(closed, price)
		s.cash += b.closeFlow(info, closed, pos.Price, price) - s.closedComm
	}

	if opened != 0 {
		openedComm := info.GetCommission(opened, price)
		delta := b.openFlow(info, opened, price) + openedComm
		if cash+s.cash-delta < 0 {
			s.marginCall = true
			return s
		}
		s.opened = opened
		s.openedValue = info.OperationCost(opened, price)
		s.openedComm = openedComm
		s.cash -= delta
	}
	return s
}

// positionValue is the mark-to-market contribution of pos.
func (b *Broker) positionValue(info *commission.Info, pos domain.Position, mark float64) float64 {
	if pos.Size == 0 {
		return 0
	}
	return b.closeFlow(info, pos.Size, pos.Price, mark)
}
