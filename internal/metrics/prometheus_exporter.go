package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scan metrics
	ResourcesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rightsizer",
		Name:      "resources_scanned_total",
		Help:      "Total resources processed by the scan loop",
	})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rightsizer",
		Name:      "scan_duration_seconds",
		Help:      "Duration of one full scan batch",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	ScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rightsizer",
		Name:      "scans_total",
		Help:      "Total scan batches started",
	})

	// Recommendation metrics
	RecommendationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rightsizer",
		Name:      "recommendations_total",
		Help:      "Total recommendations emitted, by general action",
	}, []string{"action"})

	GroupRecommendationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rightsizer",
		Name:      "group_recommendations_total",
		Help:      "Total autoscaling-group recommendations emitted, by action",
	}, []string{"action"})

	EstimatedSavingsUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rightsizer",
		Name:      "estimated_savings_monthly_usd",
		Help:      "Sum of estimated monthly savings across the last scan",
	})

	// Error metrics
	ResourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rightsizer",
		Name:      "resource_errors_total",
		Help:      "Per-resource failures contained by the scan loop",
	}, []string{"kind"}) // "insufficient_data", "postponed", "executor", "unexpected"

	FeedbackReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rightsizer",
		Name:      "feedback_received_total",
		Help:      "Operator feedback submissions, by status",
	}, []string{"status"})

	// Pricing metrics
	PricingFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rightsizer",
		Name:      "pricing_fallback_total",
		Help:      "Total times fallback (static) pricing was used instead of live API",
	}, []string{"provider", "region"})

	CatalogRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rightsizer",
		Name:      "catalog_refresh_total",
		Help:      "Shape catalog refreshes from the cloud API",
	}, []string{"result"}) // "ok", "error"
)
