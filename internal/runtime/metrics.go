package runtime

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RuntimeMetrics exposes the runtime's Prometheus collectors. Registration is
// guarded so constructing a second runtime against the same registerer does
// not panic.
type RuntimeMetrics struct {
	mu sync.Mutex

	requestsTotal   *prometheus.CounterVec
	rateLimited     prometheus.Counter
	inflight        prometheus.Gauge
	durationSeconds prometheus.Histogram

	registerer prometheus.Registerer
	registered bool
}

// NewRuntimeMetrics creates the collectors. Pass nil to use the default
// registerer.
func NewRuntimeMetrics(registerer prometheus.Registerer) *RuntimeMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &RuntimeMetrics{
		registerer: registerer,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reqflow",
				Subsystem: "runtime",
				Name:      "requests_total",
				Help:      "Total requests handled, labelled by response status",
			},
			[]string{"status"},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "reqflow",
				Subsystem: "runtime",
				Name:      "rate_limited_total",
				Help:      "Requests denied by the admission-control rate limiter",
			},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "reqflow",
				Subsystem: "runtime",
				Name:      "requests_inflight",
				Help:      "Requests currently being handled",
			},
		),
		durationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "reqflow",
				Subsystem: "runtime",
				Name:      "request_duration_seconds",
				Help:      "Request handling latency",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *RuntimeMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.rateLimited,
		m.inflight,
		m.durationSeconds,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			return err
		}
	}
	m.registered = true
	return nil
}

// Observe records one handled request.
func (m *RuntimeMetrics) Observe(status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.durationSeconds.Observe(duration.Seconds())
}

// RateLimited counts one admission denial.
func (m *RuntimeMetrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// RequestStarted and RequestFinished maintain the in-flight gauge.
func (m *RuntimeMetrics) RequestStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *RuntimeMetrics) RequestFinished() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}

// Handler returns the scrape endpoint for embedders that want to expose the
// collectors over their own HTTP mux.
func (m *RuntimeMetrics) Handler() http.Handler {
	if reg, ok := m.registerer.(*prometheus.Registry); ok {
		return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}
