package automation

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/chatrules/metric"
)

// ruleMetrics holds the engine's Prometheus instruments. All fields are
// always non-nil; with a nil registry the instruments exist but are not
// exported, which keeps the hot path free of nil checks.
type ruleMetrics struct {
	eventsTotal     *prometheus.CounterVec
	passSeconds     prometheus.Histogram
	rulesMatched    prometheus.Histogram
	actionsTotal    *prometheus.CounterVec
	supersededTotal *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	dispatchSeconds *prometheus.HistogramVec
	activeRules     prometheus.Gauge
}

func newRuleMetrics(registry *metric.MetricsRegistry) *ruleMetrics {
	m := &ruleMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrules_events_total",
			Help: "Conversation events processed, by event type and outcome",
		}, []string{"event_type", "outcome"}),
		passSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatrules_pass_duration_seconds",
			Help:    "Duration of one full evaluation pass",
			Buckets: prometheus.DefBuckets,
		}),
		rulesMatched: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatrules_rules_matched",
			Help:    "Rules matched per evaluation pass",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrules_actions_total",
			Help: "Action dispatch outcomes, by category and status",
		}, []string{"category", "status"}),
		supersededTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrules_actions_superseded_total",
			Help: "Actions superseded by an earlier exclusive claim, by category",
		}, []string{"category"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrules_action_retries_total",
			Help: "Transient action failures that were retried, by category",
		}, []string{"category"}),
		dispatchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatrules_action_dispatch_seconds",
			Help:    "Action dispatch duration including retries, by category",
			Buckets: prometheus.DefBuckets,
		}, []string{"category"}),
		activeRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatrules_active_rules",
			Help: "Active rules loaded at the last pass",
		}),
	}

	if registry == nil {
		return m
	}

	logger := slog.Default().With("component", "automation")
	register := func(name string, err error) {
		if err != nil {
			logger.Warn("metric registration failed", "metric", name, "error", err)
		}
	}
	register("events_total", registry.RegisterCounterVec("automation", "events_total", m.eventsTotal))
	register("pass_duration_seconds", registry.RegisterHistogram("automation", "pass_duration_seconds", m.passSeconds))
	register("rules_matched", registry.RegisterHistogram("automation", "rules_matched", m.rulesMatched))
	register("actions_total", registry.RegisterCounterVec("automation", "actions_total", m.actionsTotal))
	register("actions_superseded_total", registry.RegisterCounterVec("automation", "actions_superseded_total", m.supersededTotal))
	register("action_retries_total", registry.RegisterCounterVec("automation", "action_retries_total", m.retriesTotal))
	register("action_dispatch_seconds", registry.RegisterHistogramVec("automation", "action_dispatch_seconds", m.dispatchSeconds))
	register("active_rules", registry.RegisterGauge("automation", "active_rules", m.activeRules))

	return m
}
