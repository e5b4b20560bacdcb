package rule

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowkit/topicflow/metric"
)

// procMetrics holds Prometheus metrics for the rule processor. A nil
// *procMetrics is valid; all record methods become no-ops.
type procMetrics struct {
	messagesReceived   prometheus.Counter
	rulesMatched       prometheus.Counter
	rulesSkipped       *prometheus.CounterVec
	messagesPublished  prometheus.Counter
	hopLimitHits       prometheus.Counter
	errorsTotal        *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	activeRules        prometheus.Gauge
}

func newProcMetrics(registry *metric.MetricsRegistry) (*procMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace: "topicflow",
			Subsystem: "rule",
			Name:      name,
			Help:      help,
		}
	}

	m := &procMetrics{
		messagesReceived:  prometheus.NewCounter(opts("messages_received_total", "Inbound messages handled by the rule pipeline")),
		rulesMatched:      prometheus.NewCounter(opts("rules_matched_total", "Rules matched against inbound messages")),
		rulesSkipped:      prometheus.NewCounterVec(opts("rules_skipped_total", "Rules skipped before publishing"), []string{"reason"}),
		messagesPublished: prometheus.NewCounter(opts("messages_published_total", "Derived messages published")),
		hopLimitHits:      prometheus.NewCounter(opts("hop_limit_hits_total", "Messages that reached the hop limit")),
		errorsTotal:       prometheus.NewCounterVec(opts("errors_total", "Rule processing errors"), []string{"stage"}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "topicflow",
			Subsystem: "rule",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating one rule end to end",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		activeRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "topicflow",
			Subsystem: "rule",
			Name:      "active_rules",
			Help:      "Enabled rules in the current matcher snapshot",
		}),
	}

	counters := []struct {
		name string
		c    prometheus.Counter
	}{
		{"messages_received", m.messagesReceived},
		{"rules_matched", m.rulesMatched},
		{"messages_published", m.messagesPublished},
		{"hop_limit_hits", m.hopLimitHits},
	}
	for _, c := range counters {
		if err := registry.RegisterCounter("rule", c.name, c.c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterCounterVec("rule", "rules_skipped", m.rulesSkipped); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("rule", "errors", m.errorsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("rule", "evaluation_duration", m.evaluationDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("rule", "active_rules", m.activeRules); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *procMetrics) recordReceived() {
	if m != nil {
		m.messagesReceived.Inc()
	}
}

func (m *procMetrics) recordMatched(count int) {
	if m != nil && count > 0 {
		m.rulesMatched.Add(float64(count))
	}
}

func (m *procMetrics) recordSkipped(reason string) {
	if m != nil {
		m.rulesSkipped.WithLabelValues(reason).Inc()
	}
}

func (m *procMetrics) recordPublished() {
	if m != nil {
		m.messagesPublished.Inc()
	}
}

func (m *procMetrics) recordHopLimit() {
	if m != nil {
		m.hopLimitHits.Inc()
	}
}

func (m *procMetrics) recordError(stage string) {
	if m != nil {
		m.errorsTotal.WithLabelValues(stage).Inc()
	}
}

func (m *procMetrics) recordEvaluation(d time.Duration) {
	if m != nil {
		m.evaluationDuration.Observe(d.Seconds())
	}
}

func (m *procMetrics) recordActiveRules(count int) {
	if m != nil {
		m.activeRules.Set(float64(count))
	}
}
