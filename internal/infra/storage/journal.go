package storage

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"quantbroker/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNoBars is returned when an instrument has no stored bars in range.
var ErrNoBars = errors.New("no bars stored")

// Journal persists bars, order states, fills and account values of one run.
type Journal struct {
	db  *gorm.DB
	run string
}

// Open creates the SQLite journal at path for the given run.
func Open(path, run string) (*Journal, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}
	return &Journal{db: db, run: run}, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&BarRecord{}, &OrderRecord{}, &FillRecord{}, &ValueRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Run returns the run identifier stamped on every record.
func (j *Journal) Run() string { return j.run }

// Close releases the underlying connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Bar Operations
// ======================================================================================

// SaveBars stores bars of an instrument, replacing bars with the same time.
func (j *Journal) SaveBars(instrument string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	records := make([]BarRecord, 0, len(bars))
	for _, b := range bars {
		records = append(records, BarRecord{
			Instrument:   instrument,
			Time:         b.Time.UTC(),
			Open:         dec(b.Open),
			High:         dec(b.High),
			Low:          dec(b.Low),
			Close:        dec(b.Close),
			Volume:       dec(b.Volume),
			OpenInterest: dec(b.OpenInterest),
		})
	}
	return j.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instrument"}, {Name: "time"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "open_interest"}),
	}).CreateInBatches(records, 500).Error
}

// LoadBars returns the bars of an instrument ordered by time.
// A zero from or to leaves that side of the range open.
func (j *Journal) LoadBars(instrument string, from, to time.Time) ([]domain.Bar, error) {
	q := j.db.Where("instrument = ?", instrument)
	if !from.IsZero() {
		q = q.Where("time >= ?", from.UTC())
	}
	if !to.IsZero() {
		q = q.Where("time <= ?", to.UTC())
	}

	var records []BarRecord
	if err := q.Order("time asc").Find(&records).Error; err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, len(records))
	for i, r := range records {
		bars[i] = domain.Bar{
			Time:         r.Time.UTC(),
			Open:         r.Open.InexactFloat64(),
			High:         r.High.InexactFloat64(),
			Low:          r.Low.InexactFloat64(),
			Close:        r.Close.InexactFloat64(),
			Volume:       r.Volume.InexactFloat64(),
			OpenInterest: r.OpenInterest.InexactFloat64(),
		}
	}
	return bars, nil
}

// Feed loads the stored bars of an instrument into a replay feed.
func (j *Journal) Feed(instrument string, from, to time.Time) (*domain.SeriesFeed, error) {
	bars, err := j.LoadBars(instrument, from, to)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBars, instrument)
	}
	return domain.NewSeriesFeed(instrument, bars), nil
}

// ======================================================================================
// Order Operations
// ======================================================================================

// RecordOrder upserts the order state. When the snapshot carries a new
// execution its last bit is appended to the fills.
func (j *Journal) RecordOrder(o *domain.Order) error {
	rec := OrderRecord{
		RunID:         j.run,
		Ref:           o.Ref,
		Instrument:    o.Instrument,
		Kind:          o.Kind.String(),
		Status:        o.Status.String(),
		Reason:        o.Reason,
		Size:          dec(o.Size),
		Price:         dec(o.Price),
		ExecutedSize:  dec(o.Executed.Size),
		ExecutedPrice: dec(o.Executed.Price),
		Comm:          dec(o.Executed.Comm),
		PnL:           dec(o.Executed.PnL),
		ClientID:      o.ClientID,
		VenueID:       o.VenueID,
		UpdatedAt:     time.Now().UTC(),
	}

	return j.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "run_id"}, {Name: "ref"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "reason", "executed_size", "executed_price",
				"comm", "pnl", "venue_id", "updated_at",
			}),
		}).Create(&rec).Error
		if err != nil {
			return err
		}

		if o.Status != domain.StatusPartial && o.Status != domain.StatusCompleted {
			return nil
		}
		bits := o.Executed.Bits
		if len(bits) == 0 {
			return nil
		}

		var stored int64
		if err := tx.Model(&FillRecord{}).Where("run_id = ? AND ref = ?", j.run, o.Ref).Count(&stored).Error; err != nil {
			return err
		}
		if int(stored) >= len(bits) {
			return nil
		}

		fills := make([]FillRecord, 0, len(bits)-int(stored))
		for _, bit := range bits[stored:] {
			fills = append(fills, FillRecord{
				RunID:      j.run,
				Ref:        o.Ref,
				Instrument: o.Instrument,
				Time:       bit.Time.UTC(),
				Size:       dec(bit.Size),
				Price:      dec(bit.Price),
				Comm:       dec(bit.Comm()),
				PnL:        dec(bit.PnL),
				PSize:      dec(bit.PSize),
				PPrice:     dec(bit.PPrice),
			})
		}
		return tx.Create(&fills).Error
	})
}

// Orders returns the recorded orders of the run ordered by ref.
func (j *Journal) Orders() ([]OrderRecord, error) {
	var records []OrderRecord
	err := j.db.Where("run_id = ?", j.run).Order("ref asc").Find(&records).Error
	return records, err
}

// Fills returns the recorded fills of one order.
func (j *Journal) Fills(ref uint64) ([]FillRecord, error) {
	var records []FillRecord
	err := j.db.Where("run_id = ? AND ref = ?", j.run, ref).Order("id asc").Find(&records).Error
	return records, err
}

// ======================================================================================
// Account Operations
// ======================================================================================

// RecordValue appends the account value at t.
func (j *Journal) RecordValue(t time.Time, cash, value, fundValue float64) error {
	return j.db.Create(&ValueRecord{
		RunID:     j.run,
		Time:      t.UTC(),
		Cash:      dec(cash),
		Value:     dec(value),
		FundValue: dec(fundValue),
	}).Error
}

// Values returns the recorded account values of the run in time order.
func (j *Journal) Values() ([]ValueRecord, error) {
	var records []ValueRecord
	err := j.db.Where("run_id = ?", j.run).Order("time asc, id asc").Find(&records).Error
	return records, err
}

// dec converts a float for storage. NaN and infinities store as zero.
func dec(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}
