package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the namespace for all crawler metrics.
	Namespace = "politecrawl"
)

// Metrics holds all Prometheus metrics of a crawl.
type Metrics struct {
	registry *prometheus.Registry

	// Fetch metrics
	FetchesTotal    *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	RecordsTotal    *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	CaptchasTotal   *prometheus.CounterVec
	BytesDownloaded prometheus.Counter

	// Frontier metrics
	FrontierPending  prometheus.Gauge
	FrontierInFlight prometheus.Gauge
	FrontierVisited  prometheus.Gauge
	EnqueuedTotal    prometheus.Counter
	RejectedTotal    *prometheus.CounterVec

	// Politeness metrics
	DeferralsTotal *prometheus.CounterVec
	Domains        prometheus.Gauge
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}
	m.initFetchMetrics(factory)
	m.initFrontierMetrics(factory)
	m.initPolitenessMetrics(factory)
	return m
}

func (m *Metrics) initFetchMetrics(factory promauto.Factory) {
	m.FetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetches_total",
			Help:      "HTTP fetches by status code class (2xx, 4xx, 5xx) or \"error\".",
		},
		[]string{"code"},
	)
	m.FetchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a single fetch including the body read.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)
	m.RecordsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_total",
			Help:      "Terminal records by status.",
		},
		[]string{"status"},
	)
	m.RetriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "retries_total",
			Help:      "Tasks requeued after a retryable failure.",
		},
	)
	m.CaptchasTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "captchas_total",
			Help:      "CAPTCHA pages by outcome.",
		},
		[]string{"outcome"},
	)
	m.BytesDownloaded = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Decoded response body bytes.",
		},
	)
}

func (m *Metrics) initFrontierMetrics(factory promauto.Factory) {
	m.FrontierPending = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "frontier",
			Name:      "pending",
			Help:      "Tasks waiting in the frontier.",
		},
	)
	m.FrontierInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "frontier",
			Name:      "in_flight",
			Help:      "Tasks handed to workers and not yet done.",
		},
	)
	m.FrontierVisited = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "frontier",
			Name:      "visited",
			Help:      "Distinct URLs ever admitted.",
		},
	)
	m.EnqueuedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "frontier",
			Name:      "enqueued_total",
			Help:      "Tasks admitted to the frontier.",
		},
	)
	m.RejectedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "frontier",
			Name:      "rejected_total",
			Help:      "Discovered URLs dropped before admission, by reason.",
		},
		[]string{"reason"},
	)
}

func (m *Metrics) initPolitenessMetrics(factory promauto.Factory) {
	m.DeferralsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "politeness",
			Name:      "deferrals_total",
			Help:      "Fetches postponed by the politeness gate, by reason.",
		},
		[]string{"reason"},
	)
	m.Domains = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "politeness",
			Name:      "domains",
			Help:      "Domains with politeness state.",
		},
	)
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveFetch records one fetch. code is 0 for a transport error.
func (m *Metrics) ObserveFetch(code int, d time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(codeClass(code)).Inc()
	m.FetchDuration.Observe(d.Seconds())
	if bytes > 0 {
		m.BytesDownloaded.Add(float64(bytes))
	}
}

// ObserveRecord counts a terminal record.
func (m *Metrics) ObserveRecord(status string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(status).Inc()
}

// ObserveRetry counts a requeue after a retryable failure.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// ObserveCaptcha counts a CAPTCHA page by outcome (snapshot, solved, unsolved).
func (m *Metrics) ObserveCaptcha(outcome string) {
	if m == nil {
		return
	}
	m.CaptchasTotal.WithLabelValues(outcome).Inc()
}

// ObserveEnqueued counts an admitted task.
func (m *Metrics) ObserveEnqueued() {
	if m == nil {
		return
	}
	m.EnqueuedTotal.Inc()
}

// ObserveRejected counts a dropped URL.
func (m *Metrics) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveDeferral counts a politeness wait.
func (m *Metrics) ObserveDeferral(reason string) {
	if m == nil {
		return
	}
	m.DeferralsTotal.WithLabelValues(reason).Inc()
}

// SetFrontier updates the frontier gauges.
func (m *Metrics) SetFrontier(pending, inFlight, visited int) {
	if m == nil {
		return
	}
	m.FrontierPending.Set(float64(pending))
	m.FrontierInFlight.Set(float64(inFlight))
	m.FrontierVisited.Set(float64(visited))
}

// SetDomains updates the domain gauge.
func (m *Metrics) SetDomains(n int) {
	if m == nil {
		return
	}
	m.Domains.Set(float64(n))
}

// Handler returns the /metrics handler for the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if m == nil {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return m.serve(ctx, ln, logger)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("exposing Prometheus metrics", "address", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func codeClass(code int) string {
	if code <= 0 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}
