package metrics

import "github.com/prometheus/client_golang/prometheus"

// AssistantMetrics exposes counters/histograms for assistant turns.
type AssistantMetrics struct {
	turnsTotal     *prometheus.CounterVec
	rejectedTotal  *prometheus.CounterVec
	remoteFailures prometheus.Counter
	storeErrors    *prometheus.CounterVec
	replyDelay     *prometheus.HistogramVec
	mounted        prometheus.Gauge
}

func NewAssistantMetrics(reg prometheus.Registerer) *AssistantMetrics {
	m := &AssistantMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubportal",
			Subsystem: "assistant",
			Name:      "turns_total",
			Help:      "Completed assistant turns",
		}, []string{"provider", "category"}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubportal",
			Subsystem: "assistant",
			Name:      "rejected_sends_total",
			Help:      "User sends ignored by the assistant",
		}, []string{"reason"}),
		remoteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clubportal",
			Subsystem: "assistant",
			Name:      "remote_failures_total",
			Help:      "Remote chat endpoint calls that fell back to the connection-trouble reply",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubportal",
			Subsystem: "assistant",
			Name:      "store_errors_total",
			Help:      "Session store failures",
		}, []string{"op"}),
		replyDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clubportal",
			Subsystem: "assistant",
			Name:      "reply_delay_seconds",
			Help:      "Simulated typing delay before a reply is shown",
			Buckets:   []float64{0.25, 0.5, 1, 1.5, 2, 3, 5},
		}, []string{"provider"}),
		mounted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clubportal",
			Subsystem: "assistant",
			Name:      "mounted_sessions",
			Help:      "Sessions currently mounted by a widget",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.rejectedTotal, m.remoteFailures, m.storeErrors, m.replyDelay, m.mounted)
	return m
}

func (m *AssistantMetrics) ObserveTurn(provider, category string) {
	if m == nil {
		return
	}
	if category == "" {
		category = "none"
	}
	m.turnsTotal.WithLabelValues(provider, category).Inc()
}

func (m *AssistantMetrics) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

func (m *AssistantMetrics) ObserveRemoteFailure() {
	if m == nil {
		return
	}
	m.remoteFailures.Inc()
}

func (m *AssistantMetrics) ObserveStoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

func (m *AssistantMetrics) ObserveReplyDelay(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.replyDelay.WithLabelValues(provider).Observe(seconds)
}

func (m *AssistantMetrics) SessionMounted() {
	if m == nil {
		return
	}
	m.mounted.Inc()
}

func (m *AssistantMetrics) SessionUnmounted() {
	if m == nil {
		return
	}
	m.mounted.Dec()
}
