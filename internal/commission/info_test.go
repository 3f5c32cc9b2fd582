package commission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCommission(t *testing.T) {
	tests := []struct {
		name        string
		info        *Info
		size, price float64
		want        float64
	}{
		{"stock percentage", NewStock(0.001), 100, 10, 1},
		{"stock sell uses abs size", NewStock(0.001), -100, 10, 1},
		{"futures per contract", NewFutures(2, 50, 10), 3, 100, 6},
		{"fixed per fill", New(Params{Class: Stock, Commission: 5, Kind: Fixed}), 1000, 10, 5},
		{"percent given as percent", New(Params{Class: Stock, Commission: 0.1}), 100, 10, 1},
		{"minimum floor", New(Params{Class: Stock, Commission: 0.001, PercAbs: true, Minimum: 2}), 10, 10, 2},
		{"crypto on notional", NewCrypto(0.0005, 3, 0.03), 2, 1000, 1},
		{"zero size", NewStock(0.001), 0, 10, 0},
		{"non positive price", NewStock(0.001), 10, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.info.GetCommission(tt.size, tt.price), 1e-12)
		})
	}
}

func TestCommissionNeverBelowMinimum(t *testing.T) {
	info := New(Params{Class: Stock, Commission: 0.0001, PercAbs: true, Minimum: 1.5})
	for _, size := range []float64{1, 10, 100, 1e6} {
		assert.GreaterOrEqual(t, info.GetCommission(size, 3.3), 1.5)
	}
}

func TestGetMargin(t *testing.T) {
	assert.Zero(t, NewStock(0).GetMargin(100))
	assert.Equal(t, 50.0, New(Params{Margin: 50, Mult: 10}).GetMargin(100))
	assert.Equal(t, 500.0, NewFutures(0, 50, 10).GetMargin(100))
	assert.Equal(t, 25.0, NewForex(0, 50, 10, 20).GetMargin(100))
	assert.Equal(t, 500.0, New(Params{Class: Forex, Margin: 50, Mult: 10, Leverage: -1}).GetMargin(1))
	assert.InDelta(t, 20000.0, NewCrypto(0, 2, 0).GetMargin(40000), 1e-9)
}

func TestGenericClassInference(t *testing.T) {
	assert.True(t, New(Params{Commission: 0.001, PercAbs: true}).StockLike)
	assert.False(t, New(Params{Margin: 2000, Mult: 50}).StockLike)

	stock := true
	assert.True(t, New(Params{Margin: 10, StockLike: &stock}).StockLike)
}

func TestOperationCost(t *testing.T) {
	assert.Equal(t, 1000.0, NewStock(0).OperationCost(-100, 10))

	levered := New(Params{Class: Stock, Leverage: 4})
	assert.Equal(t, 250.0, levered.OperationCost(100, 10))

	assert.Equal(t, 100.0, New(Params{Margin: 50, Mult: 10}).OperationCost(2, 100))
	assert.Equal(t, 1000.0, NewFutures(0, 50, 10).OperationCost(-2, 100))
}

func TestProfitAndLoss(t *testing.T) {
	assert.Equal(t, 100.0, NewStock(0).ProfitAndLoss(10, 100, 110))
	assert.Equal(t, -100.0, NewStock(0).ProfitAndLoss(-10, 100, 110))
	assert.Equal(t, 200.0, New(Params{Margin: 50, Mult: 10}).ProfitAndLoss(2, 100, 110))
	assert.Zero(t, NewStock(0).ProfitAndLoss(0, 1, 2))
}

func TestCashAdjustAndValueSize(t *testing.T) {
	fut := New(Params{Margin: 50, Mult: 10})
	assert.Zero(t, NewStock(0).CashAdjust(10, 1, 2))
	assert.Equal(t, 200.0, fut.CashAdjust(2, 100, 110))

	assert.Equal(t, 1000.0, NewStock(0).ValueSize(100, 10))
	assert.Equal(t, -100.0, fut.ValueSize(-2, 100))
}

func TestGetSize(t *testing.T) {
	assert.Equal(t, 980.0, NewStock(0).GetSize(10.2, 10000))
	assert.Equal(t, 199.0, New(Params{Margin: 50, Mult: 10}).GetSize(100, 9999))
	assert.Zero(t, NewStock(0).GetSize(0, 10000))
	assert.Zero(t, New(Params{Class: Futures, Mult: 10}).GetSize(100, 10000))
}

func TestCreditInterest(t *testing.T) {
	stock := New(Params{Class: Stock, Interest: 0.0365})
	assert.Zero(t, stock.CreditInterest(100, 10, 10), "longs not charged")
	assert.InDelta(t, 1.0, stock.CreditInterest(-100, 10, 10), 1e-12)

	crypto := NewCrypto(0, 2, 0.0365)
	assert.InDelta(t, 1.0, crypto.CreditInterest(100, 10, 10), 1e-12)
	assert.Zero(t, crypto.CreditInterest(100, 10, 0))
}

func TestParseClass(t *testing.T) {
	c, err := ParseClass("forex")
	assert.NoError(t, err)
	assert.Equal(t, Forex, c)

	_, err = ParseClass("bonds")
	assert.Error(t, err)
}
