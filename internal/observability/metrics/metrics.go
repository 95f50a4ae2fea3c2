// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sous_voice"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsFailed  *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Audio metrics
	AudioBytesForwarded  prometheus.Counter
	AudioFramesForwarded prometheus.Counter
	AgentAudioDropped    prometheus.Counter
	AgentAudioForwarded  prometheus.Counter

	// Agent metrics
	AgentEvents     *prometheus.CounterVec
	KeepAlivesSent  prometheus.Counter
	KeepAliveErrors prometheus.Counter

	// Tool call and retrieval metrics
	ToolCalls        *prometheus.CounterVec
	RetrievalLatency prometheus.Histogram
	ContextLength    prometheus.Histogram

	// Ingestion metrics
	ChunksStored   prometheus.Counter
	ChunksDeleted  prometheus.Counter
	RecipesScraped *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	GRPCCalls *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of voice sessions accepted",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active voice sessions",
		}),
		SessionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of voice sessions that ended with an error",
		}, []string{"reason"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of voice sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}),

		AudioBytesForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_forwarded_total",
			Help:      "Total client audio bytes forwarded to the agent",
		}),
		AudioFramesForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_forwarded_total",
			Help:      "Total client audio frames forwarded to the agent",
		}),
		AgentAudioDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_audio_dropped_total",
			Help:      "Agent audio frames dropped instead of relayed to the client",
		}),
		AgentAudioForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_audio_forwarded_total",
			Help:      "Agent audio frames relayed to the client",
		}),

		AgentEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_events_total",
			Help:      "Events received from the voice agent",
		}, []string{"type"}),
		KeepAlivesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_keepalives_total",
			Help:      "Keep-alive frames sent to the voice agent",
		}),
		KeepAliveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_keepalive_errors_total",
			Help:      "Keep-alive frames that failed to send",
		}),

		ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls requested by the agent",
		}, []string{"name", "outcome"}),
		RetrievalLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_latency_seconds",
			Help:      "Recipe context retrieval latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		ContextLength: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_length_chars",
			Help:      "Length of assembled recipe context in characters",
			Buckets:   []float64{0, 100, 500, 1000, 2000, 4000, 6000},
		}),

		ChunksStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipe_chunks_stored_total",
			Help:      "Recipe chunks written to the vector store",
		}),
		ChunksDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipe_chunks_deleted_total",
			Help:      "Recipe chunks removed from the vector store",
		}),
		RecipesScraped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipes_scraped_total",
			Help:      "Recipe pages scraped",
		}, []string{"outcome"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "route", "status"}),
		HTTPLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		GRPCCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "gRPC calls served (health and reflection)",
		}, []string{"method", "code"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending. An empty reason means a clean end.
func (m *Metrics) RecordSessionEnd(reason string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
	if reason != "" {
		m.SessionsFailed.WithLabelValues(reason).Inc()
	}
}

// RecordAudioForwarded records one client frame forwarded to the agent.
func (m *Metrics) RecordAudioForwarded(bytes int) {
	m.AudioBytesForwarded.Add(float64(bytes))
	m.AudioFramesForwarded.Inc()
}

// RecordAgentAudio records an agent audio frame as forwarded or dropped.
func (m *Metrics) RecordAgentAudio(forwarded bool) {
	if forwarded {
		m.AgentAudioForwarded.Inc()
		return
	}
	m.AgentAudioDropped.Inc()
}

// RecordAgentEvent records an event received from the agent.
func (m *Metrics) RecordAgentEvent(eventType string) {
	m.AgentEvents.WithLabelValues(eventType).Inc()
}

// RecordKeepAlive records a keep-alive attempt.
func (m *Metrics) RecordKeepAlive(err error) {
	if err != nil {
		m.KeepAliveErrors.Inc()
		return
	}
	m.KeepAlivesSent.Inc()
}

// RecordToolCall records a tool call and how it was handled.
func (m *Metrics) RecordToolCall(name, outcome string) {
	m.ToolCalls.WithLabelValues(name, outcome).Inc()
}

// RecordRetrieval records retrieval latency and the resulting context length.
func (m *Metrics) RecordRetrieval(latencySeconds float64, contextChars int) {
	m.RetrievalLatency.Observe(latencySeconds)
	m.ContextLength.Observe(float64(contextChars))
}

// RecordChunksStored records chunks written for a recipe.
func (m *Metrics) RecordChunksStored(n int) {
	m.ChunksStored.Add(float64(n))
}

// RecordChunksDeleted records chunks removed for a recipe.
func (m *Metrics) RecordChunksDeleted(n int) {
	m.ChunksDeleted.Add(float64(n))
}

// RecordScrape records a recipe scrape outcome.
func (m *Metrics) RecordScrape(err error) {
	if err != nil {
		m.RecipesScraped.WithLabelValues("error").Inc()
		return
	}
	m.RecipesScraped.WithLabelValues("ok").Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, latencySeconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(latencySeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPCCall records a served gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
}
