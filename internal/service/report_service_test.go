package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"loyalty-hub/internal/model"
)

func TestTierFor(t *testing.T) {
	cases := map[int64]model.Tier{
		0:   model.TierSilver,
		100: model.TierSilver,
		101: model.TierGold,
		500: model.TierGold,
		501: model.TierPlatinum,
	}
	for count, want := range cases {
		if got := TierFor(count); got != want {
			t.Fatalf("TierFor(%d) = %s, want %s", count, got, want)
		}
	}
}

func TestReportServiceStoreTierReadsLiveCount(t *testing.T) {
	uow := newFakeUnitOfWork()
	storeID := uow.seedStore(t, visitPolicy(10, "100"))
	svc := NewReportService(uow, nil)

	for i := 0; i < 100; i++ {
		uow.seedConnection(uuid.New(), storeID)
	}
	report, err := svc.StoreTier(context.Background(), storeID.String())
	require.NoError(t, err)
	require.Equal(t, int64(100), report.ConnectedUsers)
	require.Equal(t, model.TierSilver, report.Tier)

	uow.seedConnection(uuid.New(), storeID)
	report, err = svc.StoreTier(context.Background(), storeID.String())
	require.NoError(t, err)
	require.Equal(t, model.TierGold, report.Tier)

	_, err = svc.StoreTier(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, ErrStoreNotFound)
}

func TestReportServiceTierDistribution(t *testing.T) {
	uow := newFakeUnitOfWork()
	uow.seedStore(t, visitPolicy(10, "100"))
	busy := uow.seedStore(t, visitPolicy(10, "100"))
	for i := 0; i < 501; i++ {
		uow.seedConnection(uuid.New(), busy)
	}

	distribution, err := NewReportService(uow, nil).TierDistribution(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[model.Tier]int64{
		model.TierSilver:   1,
		model.TierGold:     0,
		model.TierPlatinum: 1,
	}, distribution)
}
