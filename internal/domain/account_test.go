package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAccountBook(t *testing.T) {
	book := NewAccountBook("USDT")
	book.Set(Balance{Currency: "USDT", Total: decimal.NewFromInt(1000), Free: decimal.NewFromInt(800)})
	book.Set(Balance{Currency: "BTC", Total: decimal.RequireFromString("0.5"), Free: decimal.RequireFromString("0.5")})
	book.Set(Balance{Currency: "DOGE", Total: decimal.NewFromInt(100), Free: decimal.NewFromInt(100)})

	if got := book.Cash(); !got.Equal(decimal.NewFromInt(800)) {
		t.Errorf("Cash = %s, want 800", got)
	}
	if got := book.Get("USDT").Locked(); !got.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Locked = %s, want 200", got)
	}

	// DOGE has no price and is skipped
	equity := book.Equity(map[string]decimal.Decimal{"BTC": decimal.NewFromInt(40000)})
	if !equity.Equal(decimal.NewFromInt(21000)) {
		t.Errorf("Equity = %s, want 21000", equity)
	}

	if got := book.Get("ETH"); !got.Total.IsZero() || got.Currency != "ETH" {
		t.Errorf("unknown currency should be zero, got %+v", got)
	}
}

func TestBalanceInvariant(t *testing.T) {
	ok := Balance{Currency: "USD", Total: decimal.NewFromInt(10), Free: decimal.NewFromInt(10)}
	if err := ok.VerifyInvariant(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := Balance{Currency: "USD", Total: decimal.NewFromInt(10), Free: decimal.NewFromInt(11)}
	if err := bad.VerifyInvariant(); err == nil {
		t.Error("expected free > total to fail")
	}
}
