package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Decimal columns are stored as text so values round-trip exactly.

// BarRecord is one stored OHLCV bar.
type BarRecord struct {
	ID           uint            `gorm:"primaryKey" json:"-"`
	Instrument   string          `gorm:"uniqueIndex:idx_bar_key,priority:1" json:"instrument"`
	Time         time.Time       `gorm:"uniqueIndex:idx_bar_key,priority:2" json:"time"`
	Open         decimal.Decimal `gorm:"type:text" json:"open"`
	High         decimal.Decimal `gorm:"type:text" json:"high"`
	Low          decimal.Decimal `gorm:"type:text" json:"low"`
	Close        decimal.Decimal `gorm:"type:text" json:"close"`
	Volume       decimal.Decimal `gorm:"type:text" json:"volume"`
	OpenInterest decimal.Decimal `gorm:"type:text" json:"open_interest"`
}

// OrderRecord is the latest known state of one order in a run.
type OrderRecord struct {
	ID            uint            `gorm:"primaryKey" json:"-"`
	RunID         string          `gorm:"uniqueIndex:idx_order_key,priority:1" json:"run_id"`
	Ref           uint64          `gorm:"uniqueIndex:idx_order_key,priority:2" json:"ref"`
	Instrument    string          `gorm:"index" json:"instrument"`
	Kind          string          `json:"kind"`
	Status        string          `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	Size          decimal.Decimal `gorm:"type:text" json:"size"`
	Price         decimal.Decimal `gorm:"type:text" json:"price"`
	ExecutedSize  decimal.Decimal `gorm:"type:text" json:"executed_size"`
	ExecutedPrice decimal.Decimal `gorm:"type:text" json:"executed_price"`
	Comm          decimal.Decimal `gorm:"type:text" json:"comm"`
	PnL           decimal.Decimal `gorm:"column:pnl;type:text" json:"pnl"`
	ClientID      string          `json:"client_id,omitempty"`
	VenueID       string          `json:"venue_id,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// FillRecord is one execution bit.
type FillRecord struct {
	ID         uint            `gorm:"primaryKey" json:"-"`
	RunID      string          `gorm:"index:idx_fill_order,priority:1" json:"run_id"`
	Ref        uint64          `gorm:"index:idx_fill_order,priority:2" json:"ref"`
	Instrument string          `json:"instrument"`
	Time       time.Time       `json:"time"`
	Size       decimal.Decimal `gorm:"type:text" json:"size"`
	Price      decimal.Decimal `gorm:"type:text" json:"price"`
	Comm       decimal.Decimal `gorm:"type:text" json:"comm"`
	PnL        decimal.Decimal `gorm:"column:pnl;type:text" json:"pnl"`
	PSize      decimal.Decimal `gorm:"type:text" json:"position_size"`
	PPrice     decimal.Decimal `gorm:"type:text" json:"position_price"`
}

// ValueRecord is the account value after one step.
type ValueRecord struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	RunID     string          `gorm:"index" json:"run_id"`
	Time      time.Time       `json:"time"`
	Cash      decimal.Decimal `gorm:"type:text" json:"cash"`
	Value     decimal.Decimal `gorm:"type:text" json:"value"`
	FundValue decimal.Decimal `gorm:"type:text" json:"fund_value"`
}
