// Package metrics exposes Prometheus instrumentation for the scan
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScanCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scout",
		Name:      "scan_cycles_total",
		Help:      "Scan cycles by outcome (success, degraded, skipped, failed).",
	}, []string{"outcome"})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scout",
		Name:      "scan_duration_seconds",
		Help:      "Wall-clock duration of full scan cycles.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	AssetsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scout",
		Name:      "assets_processed_total",
		Help:      "Assets scored across all scan cycles.",
	})

	AICompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scout",
		Name:      "ai_completions_total",
		Help:      "AI analyses by source (model, fallback, placeholder).",
	}, []string{"source"})

	AlertsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scout",
		Name:      "alerts_emitted_total",
		Help:      "Score-jump alerts emitted after dedup.",
	})

	TrackedAssets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scout",
		Name:      "tracked_assets",
		Help:      "Assets currently tracked in the store.",
	})

	ProviderCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scout",
		Name:      "provider_circuit_state",
		Help:      "Circuit state per provider (0 closed, 1 open, 2 half-open).",
	}, []string{"provider"})
)

// SetCircuitState records a provider breaker transition on the gauge.
func SetCircuitState(provider string, state float64) {
	ProviderCircuitState.WithLabelValues(provider).Set(state)
}
