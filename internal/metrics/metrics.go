package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeFailed  = "failed"
)

// Metrics exposes scheduler and pool counters.
//
// All methods accept a nil receiver so callers can run without metrics.
type Metrics struct {
	QueueDepth       prometheus.Gauge
	Pending          prometheus.Gauge
	Sessions         prometheus.Gauge
	ActiveSessions   prometheus.Gauge
	Dispatches       *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
	Creations        *prometheus.CounterVec
	Invalidations    prometheus.Counter
	Rejections       prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessionpool_queue_depth",
			Help: "Envelopes waiting in the queue",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessionpool_pending",
			Help: "Envelopes claimed and waiting for a session",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessionpool_sessions",
			Help: "Sessions held by the pool",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessionpool_sessions_active",
			Help: "Sessions currently assigned to an in-flight request",
		}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionpool_dispatches_total",
			Help: "Dispatched requests by outcome",
		}, []string{"outcome"}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sessionpool_dispatch_duration_seconds",
			Help:    "Transport call duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		Creations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionpool_session_creations_total",
			Help: "Credential exchanges by outcome",
		}, []string{"outcome"}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionpool_sessions_invalidated_total",
			Help: "Sessions dropped because the service rejected their token",
		}),
		Rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionpool_drained_total",
			Help: "Waiting envelopes rejected by a systemic failure or shutdown",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.QueueDepth,
			m.Pending,
			m.Sessions,
			m.ActiveSessions,
			m.Dispatches,
			m.DispatchDuration,
			m.Creations,
			m.Invalidations,
			m.Rejections,
		)
	}

	return m
}

func (m *Metrics) ObserveQueue(queued, pending int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(queued))
	m.Pending.Set(float64(pending))
}

func (m *Metrics) ObservePool(sessions, active int) {
	if m == nil {
		return
	}
	m.Sessions.Set(float64(sessions))
	m.ActiveSessions.Set(float64(active))
}

func (m *Metrics) RecordDispatch(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(outcome).Inc()
	m.DispatchDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordCreation(outcome string) {
	if m == nil {
		return
	}
	m.Creations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordInvalidation() {
	if m == nil {
		return
	}
	m.Invalidations.Inc()
}

func (m *Metrics) RecordDrained(count int) {
	if m == nil || count == 0 {
		return
	}
	m.Rejections.Add(float64(count))
}
