// Package metrics provides Prometheus metrics for P&L runs.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Metrics holds the run and wallet metrics. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	WalletsComputed  prometheus.Counter
	WalletsSkipped   *prometheus.CounterVec
	EventsExcluded   *prometheus.CounterVec
	WalletDuration   prometheus.Histogram
	EligibleWallets  prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
}

// New creates a Metrics instance registered on its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "polypnl"
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Total number of batch runs by status",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "run_duration_seconds",
			Help:      "Batch run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		WalletsComputed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "computed_total",
			Help:      "Total number of wallets with a computed summary",
		}),
		WalletsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "skipped_total",
			Help:      "Total number of skipped wallets by reason",
		}, []string{"reason"}),
		EventsExcluded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "events_excluded_total",
			Help:      "Input records excluded from computation by kind",
		}, []string{"kind"}),
		WalletDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "compute_duration_seconds",
			Help:      "Per-wallet computation time in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		EligibleWallets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "eligible_wallets",
			Help:      "Eligible wallets in the last completed run",
		}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run",
		}),
	}
}

// ObserveWallet records one wallet result.
func (m *Metrics) ObserveWallet(res domain.WalletResult) {
	if m == nil {
		return
	}
	m.WalletDuration.Observe(res.Elapsed.Seconds())
	if res.Skip != nil {
		m.WalletsSkipped.WithLabelValues(string(res.Skip.Reason)).Inc()
		return
	}
	m.WalletsComputed.Inc()

	d := res.Diagnostics
	m.EventsExcluded.WithLabelValues("ambiguous").Add(float64(len(d.Ambiguous)))
	m.EventsExcluded.WithLabelValues("integrity").Add(float64(len(d.Integrity)))
	m.EventsExcluded.WithLabelValues("duplicate").Add(float64(d.Duplicates))
	m.EventsExcluded.WithLabelValues("unpriced_redemption").Add(float64(d.UnpricedRedemptions))
	m.EventsExcluded.WithLabelValues("unmappable_action").Add(float64(d.ActionsUnmappable))
}

// ObserveRun records a finished run. err is the run-level error, if any.
func (m *Metrics) ObserveRun(diag domain.RunDiagnostics, err error) {
	if m == nil {
		return
	}
	status := "ok"
	switch {
	case diag.Aborted:
		status = "aborted"
	case err != nil:
		status = "failed"
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	if !diag.FinishedAt.IsZero() {
		m.RunDuration.Observe(diag.FinishedAt.Sub(diag.StartedAt).Seconds())
	}
	if status == "ok" {
		m.EligibleWallets.Set(float64(diag.Eligible))
		m.LastRunTimestamp.Set(float64(diag.FinishedAt.Unix()))
	}
}

// Handler returns the Prometheus metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
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

	slog.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
