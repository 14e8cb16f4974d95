// Package metrics defines the relay's prometheus counters. A Metrics
// value is constructed once at startup with its own registry and
// injected into the stores, so tests never share state through a global
// registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters incremented by the core components.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsEvicted      prometheus.Counter
	SessionsExpired      prometheus.Counter
	BatchesSweptStale    prometheus.Counter
	ConfirmationsExpired prometheus.Counter
	ConfirmationsEvicted prometheus.Counter
	Invocations          *prometheus.CounterVec
}

// New creates a Metrics with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrelay_sessions_evicted_total",
			Help: "Sessions removed by LRU eviction at capacity.",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrelay_sessions_expired_total",
			Help: "Sessions removed by the idle-expiry sweep.",
		}),
		BatchesSweptStale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrelay_batches_swept_total",
			Help: "Abandoned batches removed by the staleness sweep.",
		}),
		ConfirmationsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrelay_confirmations_expired_total",
			Help: "Pending confirmations dropped after the timeout.",
		}),
		ConfirmationsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrelay_confirmations_evicted_total",
			Help: "Pending confirmations evicted at capacity.",
		}),
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrelay_invocations_total",
			Help: "Agent invocations by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.SessionsEvicted,
		m.SessionsExpired,
		m.BatchesSweptStale,
		m.ConfirmationsExpired,
		m.ConfirmationsEvicted,
		m.Invocations,
	)
	return m
}

// Invocation outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)
