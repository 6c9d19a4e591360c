package tracker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wesleyorama2/infraload/internal/loadtest"
)

// Metrics exposes tracker state to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ObserveRequests *prometheus.CounterVec
	ObserveLatency  prometheus.Histogram
	ServerHits      *prometheus.CounterVec
	Outages         prometheus.Counter
	OutageSeconds   prometheus.Counter
	CurrentStep     prometheus.Gauge
	SLAStopped      prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates the tracker metrics on a fresh registry. Gauges
// for open outages and users read t and env at scrape time; either may
// be nil.
func NewMetrics(t *Tracker, env *loadtest.Environment) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		ObserveRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infraload_observe_requests_total",
				Help: "Observe requests by result",
			},
			[]string{"result"},
		),
		ObserveLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "infraload_observe_duration_seconds",
				Help:    "Latency of successful observe requests",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
		),
		ServerHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infraload_server_hits_total",
				Help: "Successful observe responses by backend",
			},
			[]string{"server"},
		),
		Outages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "infraload_outages_total",
			Help: "Closed outage windows",
		}),
		OutageSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "infraload_outage_seconds_total",
			Help: "Summed duration of closed outage windows",
		}),
		CurrentStep: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "infraload_step_last_completed",
			Help: "Index of the last evaluated ramp step",
		}),
		SLAStopped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "infraload_sla_stopped",
			Help: "1 when the run was stopped by the step SLA",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.ObserveRequests,
		m.ObserveLatency,
		m.ServerHits,
		m.Outages,
		m.OutageSeconds,
		m.CurrentStep,
		m.SLAStopped,
	)

	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "infraload_outage_open",
			Help: "1 while observe requests are failing",
		},
		func() float64 {
			if t == nil {
				return 0
			}
			if _, open := t.Outages(); open {
				return 1
			}
			return 0
		},
	))
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "infraload_users",
			Help: "Live virtual users",
		},
		func() float64 {
			if env == nil || env.Runner() == nil {
				return 0
			}
			return float64(env.Runner().UserCount())
		},
	))

	return m
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// reset clears the per-run series at test start. Outages,
// OutageSeconds and ObserveLatency are plain counters and stay
// cumulative for the life of the process.
func (m *Metrics) reset() {
	if m == nil {
		return
	}
	m.ObserveRequests.Reset()
	m.ServerHits.Reset()
	m.CurrentStep.Set(0)
	m.SLAStopped.Set(0)
}

func (m *Metrics) observeFailure() {
	if m == nil {
		return
	}
	m.ObserveRequests.WithLabelValues("failure").Inc()
}

// observeSuccess records a success. outage is the closed outage in
// seconds, negative when none closed.
func (m *Metrics) observeSuccess(d time.Duration, serverID string, outage float64) {
	if m == nil {
		return
	}
	m.ObserveRequests.WithLabelValues("success").Inc()
	m.ObserveLatency.Observe(d.Seconds())
	if serverID != "" {
		m.ServerHits.WithLabelValues(serverID).Inc()
	}
	if outage >= 0 {
		m.Outages.Inc()
		m.OutageSeconds.Add(outage)
	}
}

func (m *Metrics) setStep(step int) {
	if m == nil {
		return
	}
	m.CurrentStep.Set(float64(step))
}

func (m *Metrics) setSLAStopped() {
	if m == nil {
		return
	}
	m.SLAStopped.Set(1)
}
