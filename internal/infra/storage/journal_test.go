package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"quantbroker/internal/domain"
)

func setupTestDB(t *testing.T) *Journal {
	j, err := Open(filepath.Join(t.TempDir(), "test.db"), "run-1")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		j.Close()
	})
	return j
}

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func TestSaveAndLoadBars(t *testing.T) {
	j := setupTestDB(t)

	bars := []domain.Bar{
		{Time: day0.AddDate(0, 0, 1), Open: 11, High: 12, Low: 10.5, Close: 11.5, Volume: 900},
		{Time: day0, Open: 10, High: 11, Low: 9.5, Close: 10.25, Volume: 1000},
	}
	if err := j.SaveBars("AAPL", bars); err != nil {
		t.Fatalf("SaveBars failed: %v", err)
	}
	if err := j.SaveBars("MSFT", bars[:1]); err != nil {
		t.Fatalf("SaveBars failed: %v", err)
	}

	got, err := j.LoadBars("AAPL", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("LoadBars failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 bars, got %d", len(got))
	}
	if !got[0].Time.Equal(day0) || got[0].Close != 10.25 {
		t.Errorf("Expected bars in time order, got %+v", got[0])
	}

	// Same key replaces the bar
	if err := j.SaveBars("AAPL", []domain.Bar{{Time: day0, Open: 10, High: 11, Low: 9.5, Close: 10.75, Volume: 1000}}); err != nil {
		t.Fatalf("SaveBars failed: %v", err)
	}
	got, _ = j.LoadBars("AAPL", day0, day0)
	if len(got) != 1 || got[0].Close != 10.75 {
		t.Errorf("Expected replaced bar, got %+v", got)
	}
}

func TestFeed(t *testing.T) {
	j := setupTestDB(t)

	if _, err := j.Feed("NONE", time.Time{}, time.Time{}); !errors.Is(err, ErrNoBars) {
		t.Errorf("Expected ErrNoBars, got %v", err)
	}

	if err := j.SaveBars("ES", []domain.Bar{{Time: day0, Open: 1, High: 2, Low: 1, Close: 2}}); err != nil {
		t.Fatal(err)
	}
	feed, err := j.Feed("ES", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if feed.Name() != "ES" || feed.Len() != 1 {
		t.Errorf("Unexpected feed %s with %d bars", feed.Name(), feed.Len())
	}
	if !feed.Advance() {
		t.Fatal("Expected one bar")
	}
	if bar, _ := feed.Current(); bar.Close != 2 {
		t.Errorf("Expected close 2, got %v", bar.Close)
	}
}

func TestRecordOrder(t *testing.T) {
	j := setupTestDB(t)

	o := domain.NewOrder("AAPL", 100, domain.KindMarket, 0)
	o.Ref = 1
	if err := o.Transition(domain.StatusSubmitted); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordOrder(o.Clone()); err != nil {
		t.Fatalf("RecordOrder failed: %v", err)
	}

	_ = o.Transition(domain.StatusAccepted)
	_ = o.Execute(domain.ExecutionBit{Time: day0, Size: 40, Price: 10, OpenedValue: 400, OpenedComm: 1, Opened: 40, PSize: 40, PPrice: 10})
	if err := j.RecordOrder(o.Clone()); err != nil {
		t.Fatalf("RecordOrder failed: %v", err)
	}
	// Recording the same snapshot twice must not duplicate the fill
	if err := j.RecordOrder(o.Clone()); err != nil {
		t.Fatalf("RecordOrder failed: %v", err)
	}
	_ = o.Execute(domain.ExecutionBit{Time: day0, Size: 60, Price: 11, OpenedValue: 660, OpenedComm: 1, Opened: 60, PSize: 100, PPrice: 10.6})
	if err := j.RecordOrder(o.Clone()); err != nil {
		t.Fatalf("RecordOrder failed: %v", err)
	}

	orders, err := j.Orders()
	if err != nil {
		t.Fatalf("Orders failed: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("Expected 1 order row, got %d", len(orders))
	}
	if orders[0].Status != "Completed" || orders[0].ExecutedSize.IntPart() != 100 {
		t.Errorf("Unexpected order row %+v", orders[0])
	}
	if orders[0].Comm.IntPart() != 2 {
		t.Errorf("Expected comm 2, got %s", orders[0].Comm)
	}

	fills, err := j.Fills(1)
	if err != nil {
		t.Fatalf("Fills failed: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("Expected 2 fills, got %d", len(fills))
	}
	if fills[1].PPrice.String() != "10.6" {
		t.Errorf("Expected position price 10.6, got %s", fills[1].PPrice)
	}
}

func TestRecordValue(t *testing.T) {
	j := setupTestDB(t)

	for i, v := range []float64{10000, 10100.5, 9990} {
		if err := j.RecordValue(day0.AddDate(0, 0, i), v-500, v, v/100); err != nil {
			t.Fatalf("RecordValue failed: %v", err)
		}
	}

	values, err := j.Values()
	if err != nil {
		t.Fatalf("Values failed: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("Expected 3 values, got %d", len(values))
	}
	if values[1].Value.String() != "10100.5" || values[1].Cash.String() != "9600.5" {
		t.Errorf("Unexpected value row %+v", values[1])
	}
}

func TestRunsAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	a, err := Open(path, "a")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := Open(path, "b")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	o := domain.NewOrder("ES", 1, domain.KindMarket, 0)
	o.Ref = 1
	_ = o.Transition(domain.StatusSubmitted)
	if err := a.RecordOrder(o); err != nil {
		t.Fatal(err)
	}

	if orders, _ := b.Orders(); len(orders) != 0 {
		t.Errorf("Expected run b to see no orders, got %d", len(orders))
	}
	if orders, _ := a.Orders(); len(orders) != 1 {
		t.Errorf("Expected run a to see 1 order, got %d", len(orders))
	}
}
