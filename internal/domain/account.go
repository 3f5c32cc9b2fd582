package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Balance is the venue view of one currency.
type Balance struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
	Free     decimal.Decimal `json:"free"`
}

// Locked returns the part of the balance held by open orders or margin.
func (b Balance) Locked() decimal.Decimal {
	return b.Total.Sub(b.Free)
}

// VerifyInvariant checks the venue reported a consistent balance.
func (b Balance) VerifyInvariant() error {
	if b.Free.GreaterThan(b.Total) {
		return fmt.Errorf("balance %s: free %s exceeds total %s", b.Currency, b.Free, b.Total)
	}
	return nil
}

// AccountBook keeps the latest balance per currency. Not safe for concurrent use.
type AccountBook struct {
	base     string
	balances map[string]Balance
}

// NewAccountBook creates a book valued in the base currency.
func NewAccountBook(base string) *AccountBook {
	return &AccountBook{
		base:     base,
		balances: make(map[string]Balance),
	}
}

// Set replaces the balance of one currency.
func (ab *AccountBook) Set(b Balance) {
	ab.balances[b.Currency] = b
}

// Get returns the balance for a currency, zero if unknown.
func (ab *AccountBook) Get(currency string) Balance {
	b, ok := ab.balances[currency]
	if !ok {
		return Balance{Currency: currency}
	}
	return b
}

// Cash is the free amount of the base currency.
func (ab *AccountBook) Cash() decimal.Decimal {
	return ab.Get(ab.base).Free
}

// Equity values every currency in the base currency using prices.
// Currencies without a price are skipped.
func (ab *AccountBook) Equity(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for cur, b := range ab.balances {
		if cur == ab.base {
			total = total.Add(b.Total)
			continue
		}
		price, ok := prices[cur]
		if !ok {
			continue
		}
		total = total.Add(b.Total.Mul(price))
	}
	return total
}

// Snapshot returns a copy of all balances.
func (ab *AccountBook) Snapshot() map[string]Balance {
	result := make(map[string]Balance, len(ab.balances))
	for k, v := range ab.balances {
		result[k] = v
	}
	return result
}
