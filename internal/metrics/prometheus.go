package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VisitsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_visits_processed_total",
		Help: "Visits moved out of pending by outcome",
	}, []string{"outcome"})

	VisitApprovalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loyalty_visit_approval_duration_seconds",
		Help:    "Time to run one visit approval unit of work",
		Buckets: prometheus.DefBuckets,
	})

	PointsCredited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_points_credited_total",
		Help: "Total points credited to ledgers",
	})

	PointsRedeemed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_points_redeemed_total",
		Help: "Total points consumed by redemptions",
	})

	RedemptionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_redemptions_created_total",
		Help: "Redemption records created by trigger mode",
	}, []string{"mode"})

	RedemptionsUsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_redemptions_used_total",
		Help: "Redemption codes marked used by store staff",
	})

	CodeGenerationAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loyalty_code_generation_attempts",
		Help:    "Attempts needed to draw an unused redemption code",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})

	CodeSpaceExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_code_space_exhausted_total",
		Help: "Code generations that gave up after the attempt limit",
	})

	StoreTiers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "loyalty_store_tiers",
		Help: "Number of stores per service tier",
	}, []string{"tier"})
)

func IncVisitProcessed(outcome string) {
	label := strings.TrimSpace(outcome)
	if label == "" {
		label = "unknown"
	}
	VisitsProcessed.WithLabelValues(label).Inc()
}

func ObserveVisitApprovalDuration(duration time.Duration) {
	VisitApprovalDuration.Observe(duration.Seconds())
}

func AddPointsCredited(points int64) {
	if points > 0 {
		PointsCredited.Add(float64(points))
	}
}

func ObserveRedemption(autoTriggered bool, pointsUsed int64) {
	mode := "manual"
	if autoTriggered {
		mode = "auto"
	}
	RedemptionsCreated.WithLabelValues(mode).Inc()
	if pointsUsed > 0 {
		PointsRedeemed.Add(float64(pointsUsed))
	}
}

func IncRedemptionUsed() {
	RedemptionsUsed.Inc()
}

func ObserveCodeGenerationAttempts(attempts int) {
	if attempts <= 0 {
		return
	}
	CodeGenerationAttempts.Observe(float64(attempts))
}

func IncCodeSpaceExhausted() {
	CodeSpaceExhausted.Inc()
}

func SetStoreTierCount(tier string, count int64) {
	label := strings.TrimSpace(tier)
	if label == "" {
		label = "unknown"
	}
	if count < 0 {
		count = 0
	}
	StoreTiers.WithLabelValues(label).Set(float64(count))
}
