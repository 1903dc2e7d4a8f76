package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status", "model", "stream"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Token counters
	TokensPromptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "tokens_prompt_total",
			Help:      "Total prompt tokens consumed",
		},
		[]string{"model"},
	)

	TokensCompletionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "tokens_completion_total",
			Help:      "Total completion tokens generated",
		},
		[]string{"model"},
	)

	// Inference
	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "inference_duration_seconds",
			Help:      "Model inference duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"model", "stream"},
	)

	FirstTokenDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "first_token_seconds",
			Help:      "Time to first token for streaming requests",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"model"},
	)

	InferenceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "inference_errors_total",
			Help:      "Total inference call failures",
		},
		[]string{"model", "error_type"},
	)

	ActiveStreams = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "active_streams",
			Help:      "Currently active streaming connections",
		},
		[]string{"model"},
	)

	// Conversations
	ConversationsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "conversations_created_total",
			Help:      "Total conversations created",
		},
	)

	ConversationsPurgedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "conversations_purged_total",
			Help:      "Conversations removed by the retention policy",
		},
		[]string{"trigger"},
	)

	// Save queue
	SaveQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "save_queue_depth",
			Help:      "Tasks currently waiting in the save queue",
		},
	)

	SaveQueueTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "save_queue_tasks_total",
			Help:      "Save queue task outcomes",
		},
		[]string{"outcome"},
	)

	SaveQueueRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "save_queue_retries_total",
			Help:      "Save queue task retry attempts",
		},
	)

	// Context compaction
	CompactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "compactions_total",
			Help:      "Context assembly outcomes",
		},
		[]string{"outcome"},
	)

	SummaryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "superrag",
			Subsystem: "chat",
			Name:      "summary_duration_seconds",
			Help:      "History summarization duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30},
		},
	)
)

// RecordRequest records an HTTP request with all relevant labels
func RecordRequest(method, endpoint, status, model string, stream bool, durationSec float64) {
	streamStr := "false"
	if stream {
		streamStr = "true"
	}
	RequestsTotal.WithLabelValues(method, endpoint, status, model, streamStr).Inc()
	RequestDuration.WithLabelValues(method, endpoint, status).Observe(durationSec)
}

// RecordTokens records token usage for a completion request
func RecordTokens(model string, promptTokens, completionTokens int) {
	TokensPromptTotal.WithLabelValues(model).Add(float64(promptTokens))
	TokensCompletionTotal.WithLabelValues(model).Add(float64(completionTokens))
}

// RecordInference records the duration of a model inference call
func RecordInference(model string, stream bool, durationSec float64) {
	streamStr := "false"
	if stream {
		streamStr = "true"
	}
	InferenceDuration.WithLabelValues(model, streamStr).Observe(durationSec)
}

// RecordFirstToken records time to first token for streaming
func RecordFirstToken(model string, durationSec float64) {
	FirstTokenDuration.WithLabelValues(model).Observe(durationSec)
}

// RecordInferenceError records an inference failure
func RecordInferenceError(model, errorType string) {
	if errorType == "" {
		errorType = "unknown"
	}
	InferenceErrorsTotal.WithLabelValues(model, errorType).Inc()
}

// IncrementActiveStreams increments the active streams gauge
func IncrementActiveStreams(model string) {
	ActiveStreams.WithLabelValues(model).Inc()
}

// DecrementActiveStreams decrements the active streams gauge
func DecrementActiveStreams(model string) {
	ActiveStreams.WithLabelValues(model).Dec()
}

// RecordSaveQueueTask records a save queue task outcome
// (persisted, skipped, dropped, abandoned, rejected)
func RecordSaveQueueTask(outcome string) {
	SaveQueueTasksTotal.WithLabelValues(outcome).Inc()
}

// RecordCompaction records a context assembly outcome
// (full, summarized, degraded)
func RecordCompaction(outcome string) {
	CompactionsTotal.WithLabelValues(outcome).Inc()
}

// RecordRetentionPurge records conversations removed by retention
func RecordRetentionPurge(trigger string, count int) {
	if count <= 0 {
		return
	}
	ConversationsPurgedTotal.WithLabelValues(trigger).Add(float64(count))
}
