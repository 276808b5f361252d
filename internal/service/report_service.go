package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

const (
	silverTierMaxUsers = 100
	goldTierMaxUsers   = 500
)

// TierFor maps a store's connected user count to its service tier.
func TierFor(connectedUsers int64) model.Tier {
	switch {
	case connectedUsers <= silverTierMaxUsers:
		return model.TierSilver
	case connectedUsers <= goldTierMaxUsers:
		return model.TierGold
	default:
		return model.TierPlatinum
	}
}

type StoreTierReport struct {
	StoreID        string     `json:"store_id"`
	ConnectedUsers int64      `json:"connected_users"`
	Tier           model.Tier `json:"tier"`
}

// ReportService reads counts live on every call.
type ReportService struct {
	repos  repository.Repositories
	logger *zap.Logger
}

func NewReportService(repos repository.Repositories, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReportService{
		repos:  repos,
		logger: logger,
	}
}

func (s *ReportService) StoreTier(ctx context.Context, storeID string) (*StoreTierReport, error) {
	storeUUID, err := parseID(storeID)
	if err != nil {
		return nil, err
	}

	if _, err := s.repos.Stores().FindByID(ctx, storeUUID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrStoreNotFound
		}
		return nil, err
	}

	count, err := s.repos.Stores().CountConnections(ctx, storeUUID)
	if err != nil {
		return nil, err
	}

	return &StoreTierReport{
		StoreID:        storeUUID.String(),
		ConnectedUsers: count,
		Tier:           TierFor(count),
	}, nil
}

// TierDistribution counts stores per tier. Stores without connections are
// silver and every tier is present in the result.
func (s *ReportService) TierDistribution(ctx context.Context) (map[model.Tier]int64, error) {
	counts, err := s.repos.Stores().CountConnectionsByStore(ctx)
	if err != nil {
		return nil, err
	}

	distribution := map[model.Tier]int64{
		model.TierSilver:   0,
		model.TierGold:     0,
		model.TierPlatinum: 0,
	}
	for _, count := range counts {
		distribution[TierFor(count)]++
	}
	return distribution, nil
}
