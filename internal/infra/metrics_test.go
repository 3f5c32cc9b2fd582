package infra

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quantbroker/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_OnOrder(t *testing.T) {
	m := NewMetrics("test")

	for _, s := range []domain.Status{domain.StatusSubmitted, domain.StatusAccepted, domain.StatusPartial, domain.StatusCompleted} {
		m.OnOrder(&domain.Order{Status: s})
	}
	m.OnOrder(&domain.Order{Status: domain.StatusRejected})

	if got := testutil.ToFloat64(m.fills); got != 2 {
		t.Errorf("Expected 2 fills, got %v", got)
	}
	if got := testutil.ToFloat64(m.orders.WithLabelValues("Rejected")); got != 1 {
		t.Errorf("Expected 1 rejection, got %v", got)
	}
}

func TestMetrics_AccountAndVenue(t *testing.T) {
	m := NewMetrics("test")

	m.OnAccount(9000, 10500)
	m.IncReconnect("crypto")
	m.IncReconnect("crypto")
	m.SetQueueDepth("crypto", 7)

	if got := testutil.ToFloat64(m.cash); got != 9000 {
		t.Errorf("Expected cash 9000, got %v", got)
	}
	if got := testutil.ToFloat64(m.value); got != 10500 {
		t.Errorf("Expected value 10500, got %v", got)
	}
	if got := testutil.ToFloat64(m.reconnects.WithLabelValues("crypto")); got != 2 {
		t.Errorf("Expected 2 reconnects, got %v", got)
	}
	if got := testutil.ToFloat64(m.queueDepth.WithLabelValues("crypto")); got != 7 {
		t.Errorf("Expected depth 7, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("test")
	m.RecordBar(3 * time.Millisecond)
	m.RecordError()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{"test_bars_processed_total 1", "test_errors_total 1", "test_bar_duration_seconds_count 1"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}
}
