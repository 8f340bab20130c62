package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the message pipeline.
type PipelineMetrics struct {
	inboundTotal  *prometheus.CounterVec
	responseTotal *prometheus.CounterVec
	batchSize     prometheus.Histogram
	agentLatency  prometheus.Histogram
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "pipeline",
			Name:      "inbound_event_total",
			Help:      "Total inbound Chatwoot webhook events",
		}, []string{"event_type", "outcome"}),
		responseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "pipeline",
			Name:      "response_total",
			Help:      "Total assistant responses sent",
		}, []string{"status"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "pipeline",
			Name:      "batch_size_messages",
			Help:      "Messages coalesced into one assistant call",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}),
		agentLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "pipeline",
			Name:      "agent_latency_seconds",
			Help:      "Latency of assistant completions",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.responseTotal, m.batchSize, m.agentLatency)
	return m
}

func (m *PipelineMetrics) ObserveInbound(eventType, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *PipelineMetrics) ObserveResponse(status string) {
	if m == nil {
		return
	}
	m.responseTotal.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ObserveBatchSize(messages int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(messages))
}

func (m *PipelineMetrics) ObserveAgentLatency(seconds float64) {
	if m == nil {
		return
	}
	m.agentLatency.Observe(seconds)
}

// SyncMetrics exposes counters for the calendar reconciliation job.
type SyncMetrics struct {
	runsTotal    *prometheus.CounterVec
	changesTotal *prometheus.CounterVec
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "calendar",
			Name:      "sync_runs_total",
			Help:      "Total reconciliation runs",
		}, []string{"status"}),
		changesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "calendar",
			Name:      "sync_changes_total",
			Help:      "Appointment changes applied by reconciliation",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.changesTotal)
	return m
}

func (m *SyncMetrics) ObserveRun(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}

func (m *SyncMetrics) ObserveChange(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.changesTotal.WithLabelValues(kind).Add(float64(n))
}
