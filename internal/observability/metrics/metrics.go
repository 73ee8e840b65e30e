package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "sdr"

// ConversationMetrics exposes counters/histograms for the inbound lead pipeline.
type ConversationMetrics struct {
	inboundTotal      *prometheus.CounterVec
	outboundTotal     *prometheus.CounterVec
	debounceFlushes   *prometheus.CounterVec
	debounceBatchSize prometheus.Histogram
	extractionTotal   *prometheus.CounterVec
	gateDecisions     *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	bookingTotal      *prometheus.CounterVec
	turnLatency       *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "inbound_total",
			Help:      "Inbound message events by outcome (accepted, duplicate, outgoing, empty)",
		}, []string{"status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound replies by delivery status",
		}, []string{"status"}),
		debounceFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "debounce",
			Name:      "flush_total",
			Help:      "Debounce flushes by handler result",
		}, []string{"result"}),
		debounceBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "debounce",
			Name:      "batch_size",
			Help:      "Number of raw messages coalesced per flush",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}),
		extractionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "qualification",
			Name:      "extraction_total",
			Help:      "Qualification extractions by source (llm, fallback)",
		}, []string{"source"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "qualification",
			Name:      "gate_decisions_total",
			Help:      "Qualification gate decisions",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "stage_transitions_total",
			Help:      "Conversation stage transitions",
		}, []string{"from", "to"}),
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "booking_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency of a full conversation turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.inboundTotal,
		m.outboundTotal,
		m.debounceFlushes,
		m.debounceBatchSize,
		m.extractionTotal,
		m.gateDecisions,
		m.transitions,
		m.bookingTotal,
		m.turnLatency,
	)
	return m
}

func (m *ConversationMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

func (m *ConversationMetrics) ObserveOutbound(delivered bool) {
	if m == nil {
		return
	}
	status := "failed"
	if delivered {
		status = "sent"
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *ConversationMetrics) ObserveFlush(batchSize int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.debounceFlushes.WithLabelValues(result).Inc()
	m.debounceBatchSize.Observe(float64(batchSize))
}

func (m *ConversationMetrics) ObserveExtraction(source string) {
	if m == nil {
		return
	}
	m.extractionTotal.WithLabelValues(source).Inc()
}

func (m *ConversationMetrics) ObserveGate(qualified bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if qualified {
		result = "qualified"
	}
	m.gateDecisions.WithLabelValues(result).Inc()
}

func (m *ConversationMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *ConversationMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(outcome).Inc()
}

func (m *ConversationMetrics) ObserveTurnLatency(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(stage).Observe(seconds)
}
