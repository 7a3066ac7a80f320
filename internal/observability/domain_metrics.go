package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlmind_resolutions_total",
			Help: "Total number of resolved questions by source.",
		},
		[]string{"source"},
	)
	resolutionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlmind_resolution_duration_seconds",
			Help:    "Question resolution latency by source.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
		[]string{"source"},
	)
	correctionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlmind_corrections_total",
			Help: "Total number of user corrections recorded.",
		},
	)
	autoLearnedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlmind_auto_learned_total",
			Help: "Total number of successful resolutions folded back into the stores.",
		},
	)
	patternsEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlmind_patterns_evicted_total",
			Help: "Total number of patterns removed by optimization passes.",
		},
	)
	learningRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlmind_learning_rate",
			Help: "Share of queries answered from memory (exact + pattern hits over total).",
		},
	)
	patternCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlmind_patterns",
			Help: "Current number of learned patterns.",
		},
	)
	exactCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlmind_exact_cache_entries",
			Help: "Current number of exact-cache entries.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		resolutionsTotal,
		resolutionDurationSeconds,
		correctionsTotal,
		autoLearnedTotal,
		patternsEvictedTotal,
		learningRate,
		patternCount,
		exactCacheSize,
	)
}

func ObserveResolution(source string, elapsed time.Duration) {
	resolutionsTotal.WithLabelValues(source).Inc()
	resolutionDurationSeconds.WithLabelValues(source).Observe(elapsed.Seconds())
}

func IncrementCorrections() {
	correctionsTotal.Inc()
}

func IncrementAutoLearned() {
	autoLearnedTotal.Inc()
}

func ObserveEviction(removed int) {
	if removed > 0 {
		patternsEvictedTotal.Add(float64(removed))
	}
}

func SetLearningState(rate float64, patterns, cacheEntries int) {
	learningRate.Set(rate)
	patternCount.Set(float64(patterns))
	exactCacheSize.Set(float64(cacheEntries))
}
