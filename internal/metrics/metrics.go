package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curriculum_runs_total",
			Help: "Total number of generation runs by outcome",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "curriculum_run_duration_seconds",
			Help:    "End-to-end generation run duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curriculum_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage", "status"},
	)

	StageConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curriculum_stage_confidence",
			Help:    "Confidence reported by enrichment stages",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"stage"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "curriculum_sessions_created_total",
			Help: "Total number of query sessions created",
		},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "curriculum_sessions_active",
			Help: "Number of query sessions currently held in memory",
		},
	)

	// Vector DB metrics
	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curriculum_vector_search_total",
			Help: "Total number of vector searches",
		},
		[]string{"collection", "status"},
	)

	VectorSearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curriculum_vector_search_latency_seconds",
			Help:    "Vector search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curriculum_embedding_requests_total",
			Help: "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curriculum_embedding_latency_seconds",
			Help:    "Embedding generation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curriculum_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache", "tier"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curriculum_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// Web search metrics
	SearchProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curriculum_search_provider_calls_total",
			Help: "Total number of web search provider calls",
		},
		[]string{"provider", "status"},
	)

	SearchProviderResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curriculum_search_provider_results",
			Help:    "Number of results returned per provider call",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		},
		[]string{"provider"},
	)

	SearchFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curriculum_search_fallbacks_total",
			Help: "Searches served by a provider other than the primary",
		},
		[]string{"provider"},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curriculum_llm_requests_total",
			Help: "Total number of language generation requests",
		},
		[]string{"provider", "status"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curriculum_llm_latency_seconds",
			Help:    "Language generation latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"provider"},
	)

	// Query engine metrics
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curriculum_queries_total",
			Help: "Total number of interactive queries by intent and status",
		},
		[]string{"intent", "status"},
	)

	SafetyRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curriculum_safety_rejections_total",
			Help: "Total number of queries or mutations rejected by the safety guard",
		},
		[]string{"kind"},
	)
)

// RecordRunMetrics records the outcome of a generation run
func RecordRunMetrics(status string, durationSeconds float64) {
	RunsTotal.WithLabelValues(status).Inc()
	if durationSeconds > 0 {
		RunDuration.Observe(durationSeconds)
	}
}

// RecordStageMetrics records a pipeline stage boundary
func RecordStageMetrics(stage, status string, durationSeconds, confidence float64) {
	StageDuration.WithLabelValues(stage, status).Observe(durationSeconds)
	if confidence >= 0 {
		StageConfidence.WithLabelValues(stage).Observe(confidence)
	}
}

// RecordVectorSearchMetrics records vector search metrics
func RecordVectorSearchMetrics(collection, status string, durationSeconds float64) {
	VectorSearches.WithLabelValues(collection, status).Inc()
	if durationSeconds > 0 {
		VectorSearchLatency.WithLabelValues(collection).Observe(durationSeconds)
	}
}

// RecordEmbeddingMetrics records embedding metrics
func RecordEmbeddingMetrics(model, status string, durationSeconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		EmbeddingLatency.WithLabelValues(model).Observe(durationSeconds)
	}
}

// RecordSearchProviderMetrics records a single provider attempt
func RecordSearchProviderMetrics(provider string, ok bool, results int) {
	status := "success"
	if !ok {
		status = "unavailable"
	}
	SearchProviderCalls.WithLabelValues(provider, status).Inc()
	SearchProviderResults.WithLabelValues(provider).Observe(float64(results))
}

// RecordLLMMetrics records a language generation call
func RecordLLMMetrics(provider, status string, durationSeconds float64) {
	LLMRequests.WithLabelValues(provider, status).Inc()
	if durationSeconds > 0 {
		LLMLatency.WithLabelValues(provider).Observe(durationSeconds)
	}
}

// RecordQueryMetrics records an interactive query outcome
func RecordQueryMetrics(intent, status string) {
	if intent == "" {
		intent = "none"
	}
	QueriesTotal.WithLabelValues(intent, status).Inc()
}
