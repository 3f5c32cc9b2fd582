package domain

import (
	"math"
	"testing"
	"time"
)

func TestBarValid(t *testing.T) {
	good := Bar{Open: 1, High: 2, Low: 0.5, Close: 1.5}
	if !good.Valid() {
		t.Error("expected valid bar")
	}

	for name, b := range map[string]Bar{
		"zero open":  {Open: 0, High: 2, Low: 1, Close: 1},
		"nan close":  {Open: 1, High: 2, Low: 1, Close: math.NaN()},
		"negative":  {Open: 1, High: 2, Low: -1, Close: 1},
	} {
		if b.Valid() {
			t.Errorf("%s: expected invalid bar", name)
		}
	}
}

func TestSeriesFeed(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feed := NewSeriesFeed("AAPL", []Bar{{Time: t0, Close: 1}, {Time: t0.Add(time.Hour), Close: 2}})

	if _, ok := feed.Current(); ok {
		t.Fatal("feed should start before the first bar")
	}
	if !feed.Advance() {
		t.Fatal("expected first bar")
	}
	if b, _ := feed.Current(); b.Close != 1 {
		t.Errorf("Close = %v, want 1", b.Close)
	}
	if b, ok := feed.Peek(); !ok || b.Close != 2 {
		t.Errorf("Peek = %v %v, want 2", b.Close, ok)
	}
	feed.Advance()
	if feed.Advance() {
		t.Error("expected end of feed")
	}
	if feed.Name() != "AAPL" || feed.Len() != 2 {
		t.Errorf("unexpected name/len %s/%d", feed.Name(), feed.Len())
	}
}
