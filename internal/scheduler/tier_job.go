package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"loyalty-hub/internal/metrics"
	"loyalty-hub/internal/model"
)

const tierRefreshTimeout = 2 * time.Minute

// TierDistributor is implemented by service.ReportService.
type TierDistributor interface {
	TierDistribution(ctx context.Context) (map[model.Tier]int64, error)
}

// TierJob publishes how many stores sit in each tier. It only feeds
// reporting; request paths always compute tiers live.
type TierJob struct {
	reports TierDistributor
	logger  *zap.Logger
	publish func(tier string, count int64)
}

func NewTierJob(reports TierDistributor, logger *zap.Logger) *TierJob {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TierJob{
		reports: reports,
		logger:  logger,
		publish: metrics.SetStoreTierCount,
	}
}

func (j *TierJob) Refresh() {
	if j == nil || j.reports == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), tierRefreshTimeout)
	defer cancel()

	distribution, err := j.reports.TierDistribution(ctx)
	if err != nil {
		j.logger.Warn("tier distribution refresh failed", zap.Error(err))
		return
	}

	for _, tier := range []model.Tier{model.TierSilver, model.TierGold, model.TierPlatinum} {
		j.publish(string(tier), distribution[tier])
	}
	j.logger.Debug("tier distribution refreshed",
		zap.Int64("silver", distribution[model.TierSilver]),
		zap.Int64("gold", distribution[model.TierGold]),
		zap.Int64("platinum", distribution[model.TierPlatinum]),
	)
}
