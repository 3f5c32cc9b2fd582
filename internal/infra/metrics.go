package infra

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"quantbroker/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports broker activity to Prometheus. It implements
// domain.Observer and the live adapter metrics hooks.
type Metrics struct {
	registry *prometheus.Registry

	orders       *prometheus.CounterVec // by status
	fills        prometheus.Counter
	errorsTotal  prometheus.Counter
	barLatency   prometheus.Histogram
	cash         prometheus.Gauge
	value        prometheus.Gauge
	reconnects   *prometheus.CounterVec // by venue
	queueDepth   *prometheus.GaugeVec   // by venue
	barProcessed prometheus.Counter
}

var _ domain.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors on a private registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_notifications_total",
			Help:      "Order state changes by resulting status",
		}, []string{"status"}),
		fills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Partial and complete executions",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors raised while driving the broker",
		}),
		barLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bar_duration_seconds",
			Help:      "Time spent processing one bar",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cash",
			Help:      "Broker cash",
		}),
		value: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "value",
			Help:      "Broker portfolio value",
		}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Venue sessions lost and re-established",
		}, []string{"venue"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_queue_depth",
			Help:      "Tasks waiting for a live adapter worker",
		}, []string{"venue"}),
		barProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bars_processed_total",
			Help:      "Bars processed by the runner",
		}),
	}

	m.registry.MustRegister(
		m.orders, m.fills, m.errorsTotal, m.barLatency,
		m.cash, m.value, m.reconnects, m.queueDepth, m.barProcessed,
	)
	return m
}

// OnOrder counts an order notification.
func (m *Metrics) OnOrder(o *domain.Order) {
	m.orders.WithLabelValues(o.Status.String()).Inc()
	if o.Status == domain.StatusPartial || o.Status == domain.StatusCompleted {
		m.fills.Inc()
	}
}

// OnAccount records the latest cash and value.
func (m *Metrics) OnAccount(cash, value float64) {
	m.cash.Set(cash)
	m.value.Set(value)
}

// IncReconnect counts a lost venue session.
func (m *Metrics) IncReconnect(venue string) {
	m.reconnects.WithLabelValues(venue).Inc()
}

// SetQueueDepth records the worker queue length of a venue.
func (m *Metrics) SetQueueDepth(venue string, depth int) {
	m.queueDepth.WithLabelValues(venue).Set(float64(depth))
}

// RecordBar records one processed bar with its latency.
func (m *Metrics) RecordBar(latency time.Duration) {
	m.barProcessed.Inc()
	m.barLatency.Observe(latency.Seconds())
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Starting metrics server", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
