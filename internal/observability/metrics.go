package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the estimation pipeline.
// All recording methods are safe on a nil *Metrics.
type Metrics struct {
	ProviderRequests *prometheus.CounterVec   // labels: kind={geocode,irradiance}, provider, outcome={success,error,empty}
	ProviderDuration *prometheus.HistogramVec // labels: kind, provider
	GeocodeCache     *prometheus.CounterVec   // labels: result={hit,miss}
	RateGateWait     prometheus.Histogram

	IrradianceFallbacks prometheus.Counter
	StageSubmissions    *prometheus.CounterVec // labels: stage, outcome={ok,error}
	RecordsFinalized    prometheus.Counter
	SessionsSwept       prometheus.Counter
}

// NewMetrics creates all collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sunsavvy",
			Name:      "provider_requests_total",
			Help:      "External provider calls by kind, provider and outcome.",
		}, []string{"kind", "provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sunsavvy",
			Name:      "provider_request_duration_seconds",
			Help:      "External provider call duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}, []string{"kind", "provider"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sunsavvy",
			Name:      "geocode_cache_total",
			Help:      "Geocode cache lookups by result.",
		}, []string{"result"}),
		RateGateWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sunsavvy",
			Name:      "geocode_rate_gate_wait_seconds",
			Help:      "Time spent waiting on the primary geocoder rate gate.",
			Buckets:   []float64{0, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		IrradianceFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sunsavvy",
			Name:      "irradiance_fallbacks_total",
			Help:      "Irradiance resolutions that ended in the random fallback.",
		}),
		StageSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sunsavvy",
			Name:      "stage_submissions_total",
			Help:      "Estimation stage submissions by stage and outcome.",
		}, []string{"stage", "outcome"}),
		RecordsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sunsavvy",
			Name:      "records_finalized_total",
			Help:      "Estimation records written by finalize.",
		}),
		SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sunsavvy",
			Name:      "sessions_swept_total",
			Help:      "Expired in-memory sessions removed by the sweeper.",
		}),
	}

	reg.MustRegister(
		m.ProviderRequests,
		m.ProviderDuration,
		m.GeocodeCache,
		m.RateGateWait,
		m.IrradianceFallbacks,
		m.StageSubmissions,
		m.RecordsFinalized,
		m.SessionsSwept,
	)

	return m
}

// NewMetricsForTesting registers against a fresh registry to avoid
// "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func (m *Metrics) ObserveProvider(kind, provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(kind, provider, outcome).Inc()
	m.ProviderDuration.WithLabelValues(kind, provider).Observe(d.Seconds())
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.GeocodeCache.WithLabelValues("hit").Inc()
		return
	}
	m.GeocodeCache.WithLabelValues("miss").Inc()
}

func (m *Metrics) GateWaited(d time.Duration) {
	if m == nil {
		return
	}
	m.RateGateWait.Observe(d.Seconds())
}

func (m *Metrics) FallbackUsed() {
	if m == nil {
		return
	}
	m.IrradianceFallbacks.Inc()
}

func (m *Metrics) StageSubmitted(stage string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.StageSubmissions.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) RecordFinalized() {
	if m == nil {
		return
	}
	m.RecordsFinalized.Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsSwept.Add(float64(n))
}
