package oauth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

const metricsNamespace = "getgetleads"

// Result label values.
const (
	resultSuccess   = "success"
	resultDenied    = "denied"
	resultInvalid   = "invalid_state"
	resultFailed    = "exchange_failed"
	resultReauth    = "reauth_required"
	resultTransient = "transient"
)

// Metrics holds the Prometheus collectors for provider connections. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	authorizationsStarted *prometheus.CounterVec
	callbacks             *prometheus.CounterVec
	refreshes             *prometheus.CounterVec
	refreshDuration       *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. It returns nil, which
// disables metrics, when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)

	return &Metrics{
		authorizationsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "oauth",
				Name:      "authorizations_started_total",
				Help:      "Authorization flows started, by provider.",
			},
			[]string{"provider"},
		),
		callbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "oauth",
				Name:      "callbacks_total",
				Help:      "Authorization callbacks handled, by provider and result.",
			},
			[]string{"provider", "result"},
		),
		refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "oauth",
				Name:      "refreshes_total",
				Help:      "Token refresh calls to the backend, by provider and result.",
			},
			[]string{"provider", "result"},
		),
		refreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "oauth",
				Name:      "refresh_duration_seconds",
				Help:      "Latency of token refresh calls to the backend.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
	}
}

func (m *Metrics) authorizationStarted(provider pkgoauth.Provider) {
	if m == nil {
		return
	}
	m.authorizationsStarted.WithLabelValues(string(provider)).Inc()
}

func (m *Metrics) callback(provider pkgoauth.Provider, result string) {
	if m == nil {
		return
	}
	if provider == "" {
		provider = "unknown"
	}
	m.callbacks.WithLabelValues(string(provider), result).Inc()
}

func (m *Metrics) refresh(provider pkgoauth.Provider, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(string(provider), result).Inc()
	m.refreshDuration.WithLabelValues(string(provider)).Observe(took.Seconds())
}
