package app

import (
	"net/http"

	"sauat/cmd/internal/auth/session"
	"sauat/cmd/internal/presence"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the process registry served on /metrics.
type Metrics struct {
	reg *prometheus.Registry

	presenceActive prometheus.Gauge
	authOutcomes   *prometheus.CounterVec
	cleanupRemoved prometheus.Counter
	cleanupErrors  prometheus.Counter
}

var _ session.Observer = (*Metrics)(nil)

// NewMetrics builds a private registry with runtime collectors and sauat metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		presenceActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sauat",
			Subsystem: "presence",
			Name:      "active_connections",
			Help:      "Distinct presence keys currently connected.",
		}),
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sauat",
			Subsystem: "auth",
			Name:      "operations_total",
			Help:      "Completed auth operations by op and outcome.",
		}, []string{"op", "outcome"}),
		cleanupRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sauat",
			Subsystem: "refresh",
			Name:      "cleanup_removed_total",
			Help:      "Inactive refresh tokens deleted by the sweeper.",
		}),
		cleanupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sauat",
			Subsystem: "refresh",
			Name:      "cleanup_errors_total",
			Help:      "Failed refresh token sweeps.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.presenceActive,
		m.authOutcomes,
		m.cleanupRemoved,
		m.cleanupErrors,
	)
	return m
}

// AuthOutcome implements session.Observer.
func (m *Metrics) AuthOutcome(op, outcome string) {
	m.authOutcomes.WithLabelValues(op, outcome).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// TrackPresence mirrors the tracker count into the presence gauge until the
// returned stop func is called or the tracker closes.
func (m *Metrics) TrackPresence(t *presence.Tracker) (stop func()) {
	sub, n := t.SubscribeWithCount(0)
	m.presenceActive.Set(float64(n))

	go func() {
		for {
			select {
			case ev := <-sub.C():
				m.presenceActive.Set(float64(ev.Count))
			case <-sub.Done():
				return
			}
		}
	}()
	return sub.Close
}

func (m *Metrics) observeCleanup(removed int64, err error) {
	if err != nil {
		m.cleanupErrors.Inc()
		return
	}
	m.cleanupRemoved.Add(float64(removed))
}
