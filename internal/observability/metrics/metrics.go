package metrics

import "github.com/prometheus/client_golang/prometheus"

// DialogueMetrics exposes counters/histograms for the consultation flow.
type DialogueMetrics struct {
	turnsTotal        *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	generatorLatency  *prometheus.HistogramVec
	generatorFailures *prometheus.CounterVec
	leadsTotal        *prometheus.CounterVec
	sessionsStarted   prometheus.Counter
}

func NewDialogueMetrics(reg prometheus.Registerer) *DialogueMetrics {
	m := &DialogueMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "dialogue",
			Name:      "turns_total",
			Help:      "Total user turns handled, by stage and resolver rule",
		}, []string{"stage", "rule"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "dialogue",
			Name:      "stage_transitions_total",
			Help:      "Total stage changes",
		}, []string{"from", "to"}),
		generatorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "consult",
			Subsystem: "dialogue",
			Name:      "generator_latency_seconds",
			Help:      "Latency of response generator calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "status"}),
		generatorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "dialogue",
			Name:      "generator_failures_total",
			Help:      "Generator calls that fell back to a canned reply",
		}, []string{"stage", "reason"}),
		leadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "leads",
			Name:      "submissions_total",
			Help:      "Lead form submissions",
		}, []string{"status"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "dialogue",
			Name:      "sessions_started_total",
			Help:      "Consultation sessions started",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.transitionsTotal, m.generatorLatency, m.generatorFailures, m.leadsTotal, m.sessionsStarted)
	return m
}

func (m *DialogueMetrics) ObserveTurn(stage, rule string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(stage, rule).Inc()
}

func (m *DialogueMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *DialogueMetrics) ObserveGeneratorLatency(stage string, ok bool, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.generatorLatency.WithLabelValues(stage, status).Observe(seconds)
}

func (m *DialogueMetrics) ObserveGeneratorFailure(stage, reason string) {
	if m == nil {
		return
	}
	m.generatorFailures.WithLabelValues(stage, reason).Inc()
}

func (m *DialogueMetrics) ObserveLead(status string) {
	if m == nil {
		return
	}
	m.leadsTotal.WithLabelValues(status).Inc()
}

func (m *DialogueMetrics) ObserveSessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}
