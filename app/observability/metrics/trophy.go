package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TrophyMetrics records service, reconciliation and scheduler metrics.
type TrophyMetrics interface {
	RecordOperationAttempt(ctx context.Context, operation, service string)
	RecordOperationSuccess(ctx context.Context, operation, service string)
	RecordOperationFailure(ctx context.Context, operation, service string)
	RecordOperationDuration(ctx context.Context, operation, service string, duration time.Duration)

	RecordPoll(ctx context.Context, outcome string)
	RecordAdjustment(ctx context.Context, kind string, amount int)
	RecordTick(ctx context.Context, activity string, duration time.Duration)
	RecordAnchoredAction(ctx context.Context, action, outcome string)
	SetTrackedPlayers(ctx context.Context, n int)
}

type prometheusTrophyMetrics struct {
	opAttempts  *prometheus.CounterVec
	opSuccesses *prometheus.CounterVec
	opFailures  *prometheus.CounterVec
	opDuration  *prometheus.HistogramVec

	polls       *prometheus.CounterVec
	adjustments *prometheus.CounterVec
	trophies    *prometheus.CounterVec
	ticks       *prometheus.HistogramVec
	anchored    *prometheus.CounterVec
	tracked     prometheus.Gauge
}

// NewTrophyMetrics registers the trophy collectors on reg.
func NewTrophyMetrics(reg prometheus.Registerer, prefix string) (TrophyMetrics, error) {
	if prefix == "" {
		prefix = "trophy"
	}
	m := &prometheusTrophyMetrics{
		opAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix, Name: "operation_attempts_total", Help: "Service operation attempts.",
		}, []string{"operation", "service"}),
		opSuccesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix, Name: "operation_success_total", Help: "Service operations that succeeded.",
		}, []string{"operation", "service"}),
		opFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix, Name: "operation_failure_total", Help: "Service operations that failed.",
		}, []string{"operation", "service"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prefix, Name: "operation_duration_seconds", Help: "Service operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "service"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix, Name: "source_polls_total", Help: "Score source polls by outcome.",
		}, []string{"outcome"}),
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix, Name: "adjustments_total", Help: "Classified score adjustments.",
		}, []string{"kind"}),
		trophies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix, Name: "adjusted_trophies_total", Help: "Trophies gained or lost across all players.",
		}, []string{"kind"}),
		ticks: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prefix, Name: "scheduler_tick_seconds", Help: "Scheduler tick duration.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"activity"}),
		anchored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix, Name: "anchored_actions_total", Help: "Anchored actions fired by outcome.",
		}, []string{"action", "outcome"}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: prefix, Name: "tracked_players", Help: "Players loaded by the last reconciliation tick.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.opAttempts, m.opSuccesses, m.opFailures, m.opDuration,
		m.polls, m.adjustments, m.trophies, m.ticks, m.anchored, m.tracked,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *prometheusTrophyMetrics) RecordOperationAttempt(_ context.Context, operation, service string) {
	m.opAttempts.WithLabelValues(operation, service).Inc()
}

func (m *prometheusTrophyMetrics) RecordOperationSuccess(_ context.Context, operation, service string) {
	m.opSuccesses.WithLabelValues(operation, service).Inc()
}

func (m *prometheusTrophyMetrics) RecordOperationFailure(_ context.Context, operation, service string) {
	m.opFailures.WithLabelValues(operation, service).Inc()
}

func (m *prometheusTrophyMetrics) RecordOperationDuration(_ context.Context, operation, service string, d time.Duration) {
	m.opDuration.WithLabelValues(operation, service).Observe(d.Seconds())
}

func (m *prometheusTrophyMetrics) RecordPoll(_ context.Context, outcome string) {
	m.polls.WithLabelValues(outcome).Inc()
}

func (m *prometheusTrophyMetrics) RecordAdjustment(_ context.Context, kind string, amount int) {
	m.adjustments.WithLabelValues(kind).Inc()
	if amount > 0 {
		m.trophies.WithLabelValues(kind).Add(float64(amount))
	}
}

func (m *prometheusTrophyMetrics) RecordTick(_ context.Context, activity string, d time.Duration) {
	m.ticks.WithLabelValues(activity).Observe(d.Seconds())
}

func (m *prometheusTrophyMetrics) RecordAnchoredAction(_ context.Context, action, outcome string) {
	m.anchored.WithLabelValues(action, outcome).Inc()
}

func (m *prometheusTrophyMetrics) SetTrackedPlayers(_ context.Context, n int) {
	m.tracked.Set(float64(n))
}

// NoOpTrophyMetrics discards everything.
type NoOpTrophyMetrics struct{}

// NewNoop returns a TrophyMetrics that records nothing.
func NewNoop() TrophyMetrics { return NoOpTrophyMetrics{} }

func (NoOpTrophyMetrics) RecordOperationAttempt(context.Context, string, string)                 {}
func (NoOpTrophyMetrics) RecordOperationSuccess(context.Context, string, string)                 {}
func (NoOpTrophyMetrics) RecordOperationFailure(context.Context, string, string)                 {}
func (NoOpTrophyMetrics) RecordOperationDuration(context.Context, string, string, time.Duration) {}
func (NoOpTrophyMetrics) RecordPoll(context.Context, string)                                     {}
func (NoOpTrophyMetrics) RecordAdjustment(context.Context, string, int)                          {}
func (NoOpTrophyMetrics) RecordTick(context.Context, string, time.Duration)                      {}
func (NoOpTrophyMetrics) RecordAnchoredAction(context.Context, string, string)                   {}
func (NoOpTrophyMetrics) SetTrackedPlayers(context.Context, int)                                 {}
