package observability

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aretw0/orderflow/pkg/domain"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	turns           *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	substitutions   *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	backendCalls    *prometheus.CounterVec
	backendDuration prometheus.Histogram
}

// NewMetrics registers the collectors on reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		turns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderflow_turns_total",
				Help: "Turns processed, by resulting stage and ladder rung",
			},
			[]string{"stage", "rung"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderflow_stage_transitions_total",
				Help: "Stage changes",
			},
			[]string{"from", "to"},
		),
		substitutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderflow_stage_substitutions_total",
				Help: "Backend stage proposals replaced by the transition validator",
			},
			[]string{"reason"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderflow_fallbacks_total",
				Help: "Turns answered by a fallback rung",
			},
			[]string{"rung"},
		),
		backendCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderflow_backend_calls_total",
				Help: "Generative backend calls",
			},
			[]string{"status"}, // success, error, timeout
		),
		backendDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orderflow_backend_duration_seconds",
				Help:    "Generative backend call duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
			},
		),
	}
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnEnd: func(_ context.Context, e *domain.TurnEvent) {
			m.turns.WithLabelValues(e.Stage, e.Rung).Inc()
		},
		OnStageChange: func(_ context.Context, e *domain.StageEvent) {
			m.transitions.WithLabelValues(e.From, e.To).Inc()
		},
		OnSubstitution: func(_ context.Context, e *domain.SubstitutionEvent) {
			m.substitutions.WithLabelValues(e.Substitution.Reason).Inc()
		},
		OnFallback: func(_ context.Context, e *domain.FallbackEvent) {
			m.fallbacks.WithLabelValues(e.Rung).Inc()
		},
		OnBackendCall: func(_ context.Context, e *domain.BackendEvent) {
			m.backendCalls.WithLabelValues(backendStatus(e.Err)).Inc()
			m.backendDuration.Observe(e.Duration.Seconds())
		},
	}
}

func backendStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
