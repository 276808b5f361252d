package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type redemptionFixture struct {
	uow     *fakeUnitOfWork
	svc     *RedemptionService
	userID  uuid.UUID
	storeID uuid.UUID
}

func newRedemptionFixture(t *testing.T, balance int64, rate string) *redemptionFixture {
	t.Helper()
	uow := newFakeUnitOfWork()
	storeID := uow.seedStore(t, spendPolicy("1", rate))
	userID := uuid.New()
	uow.seedConnection(userID, storeID)
	uow.seedBalance(userID, storeID, balance)

	return &redemptionFixture{
		uow:     uow,
		svc:     NewRedemptionService(uow, nil, nil, nil),
		userID:  userID,
		storeID: storeID,
	}
}

func TestRedeemPointsLeavesRemainder(t *testing.T) {
	f := newRedemptionFixture(t, 250, "100")

	redemption, err := f.svc.RedeemPoints(context.Background(), f.userID.String(), f.storeID.String())
	require.NoError(t, err)
	require.True(t, redemption.RewardValue.Equal(decimal.NewFromInt(2)))
	require.Equal(t, int64(200), redemption.PointsUsed)
	require.False(t, redemption.AutoTriggered)
	require.False(t, redemption.Used)
	require.True(t, isRedemptionCode(redemption.Code))
	require.Equal(t, int64(50), f.uow.balance(f.userID, f.storeID))

	txns := f.uow.transactionsFor(f.userID, f.storeID)
	require.Len(t, txns, 1)
	require.Equal(t, int64(-200), txns[0].Delta)
	require.Equal(t, redemption.ID, *txns[0].ReferenceID)
}

func TestRedeemPointsBelowOneUnit(t *testing.T) {
	f := newRedemptionFixture(t, 40, "100")
	ctx := context.Background()

	_, err := f.svc.RedeemPoints(ctx, f.userID.String(), f.storeID.String())
	require.ErrorIs(t, err, ErrInsufficientPoints)

	var auto *model.Redemption
	err = f.uow.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		store, err := tx.Stores().FindByID(ctx, f.storeID)
		if err != nil {
			return err
		}
		auto, err = f.svc.redeemTx(ctx, tx, f.userID, f.storeID, store.Policy, true)
		return err
	})
	require.NoError(t, err)
	require.Nil(t, auto)
	require.Equal(t, int64(40), f.uow.balance(f.userID, f.storeID))
	require.Zero(t, f.uow.redemptionCount())
}

func TestRedeemPointsRequiresConnectionAndStore(t *testing.T) {
	f := newRedemptionFixture(t, 500, "100")
	ctx := context.Background()

	_, err := f.svc.RedeemPoints(ctx, uuid.NewString(), f.storeID.String())
	require.ErrorIs(t, err, ErrNotConnectedToStore)

	_, err = f.svc.RedeemPoints(ctx, f.userID.String(), uuid.NewString())
	require.ErrorIs(t, err, ErrStoreNotFound)

	require.Equal(t, int64(500), f.uow.balance(f.userID, f.storeID))
}

func TestRedeemPointsGranularity(t *testing.T) {
	for _, balance := range []int64{99, 100, 101, 199, 250, 1001} {
		f := newRedemptionFixture(t, balance, "100")
		redemption, err := f.svc.RedeemPoints(context.Background(), f.userID.String(), f.storeID.String())
		if balance < 100 {
			require.ErrorIs(t, err, ErrInsufficientPoints)
			continue
		}
		require.NoError(t, err)
		if redemption.PointsUsed%100 != 0 {
			t.Fatalf("balance %d: pointsUsed %d is not a multiple of 100", balance, redemption.PointsUsed)
		}
		require.Equal(t, balance%100, f.uow.balance(f.userID, f.storeID))
	}
}

func TestRedeemPointsRetriesCodeConflict(t *testing.T) {
	f := newRedemptionFixture(t, 300, "100")
	f.uow.createRedemptionErrs = []error{repository.ErrDuplicate}

	redemption, err := f.svc.RedeemPoints(context.Background(), f.userID.String(), f.storeID.String())
	require.NoError(t, err)
	require.Equal(t, int64(300), redemption.PointsUsed)
	require.Zero(t, f.uow.balance(f.userID, f.storeID))
	require.Equal(t, 1, f.uow.redemptionCount())
	require.Len(t, f.uow.transactionsFor(f.userID, f.storeID), 1)
}

func TestRedeemPointsCodeSpaceExhaustedMutatesNothing(t *testing.T) {
	f := newRedemptionFixture(t, 300, "100")
	f.svc.codes.draw = sequenceDraw("55555555")
	f.uow.mu.Lock()
	f.uow.state.redemptions["55555555"] = model.Redemption{ID: uuid.New(), Code: "55555555", Used: true}
	f.uow.mu.Unlock()

	_, err := f.svc.RedeemPoints(context.Background(), f.userID.String(), f.storeID.String())
	require.ErrorIs(t, err, ErrCodeSpaceExhausted)
	require.Equal(t, int64(300), f.uow.balance(f.userID, f.storeID))
}

func TestRedeemPointsConcurrentSpendsOnce(t *testing.T) {
	f := newRedemptionFixture(t, 100, "100")

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RedeemPoints(context.Background(), f.userID.String(), f.storeID.String())
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrInsufficientPoints) {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("unexpected error: %v", err)
	}

	require.Equal(t, 1, successes)
	require.Zero(t, f.uow.balance(f.userID, f.storeID))
}

func TestMarkUsedExactlyOnce(t *testing.T) {
	f := newRedemptionFixture(t, 100, "100")
	ctx := context.Background()
	redemption, err := f.svc.RedeemPoints(ctx, f.userID.String(), f.storeID.String())
	require.NoError(t, err)

	const workers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		used    int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.MarkUsed(ctx, f.storeID.String(), redemption.Code, uuid.NewString())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrAlreadyUsed):
				used++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, success)
	require.Equal(t, workers-1, used)

	got, err := f.svc.Verify(ctx, f.storeID.String(), redemption.Code)
	require.NoError(t, err)
	require.True(t, got.Used)
	require.NotNil(t, got.UsedAt)
}

func TestMarkUsedTenancyAndLookup(t *testing.T) {
	f := newRedemptionFixture(t, 100, "100")
	ctx := context.Background()
	redemption, err := f.svc.RedeemPoints(ctx, f.userID.String(), f.storeID.String())
	require.NoError(t, err)

	_, err = f.svc.MarkUsed(ctx, uuid.NewString(), redemption.Code, uuid.NewString())
	require.ErrorIs(t, err, ErrNotAuthorizedForStore)

	_, err = f.svc.Verify(ctx, uuid.NewString(), redemption.Code)
	require.ErrorIs(t, err, ErrNotAuthorizedForStore)

	missing := "00000000"
	if redemption.Code == missing {
		missing = "00000001"
	}
	_, err = f.svc.MarkUsed(ctx, f.storeID.String(), missing, uuid.NewString())
	require.ErrorIs(t, err, ErrCodeNotFound)

	_, err = f.svc.MarkUsed(ctx, f.storeID.String(), "12ab", uuid.NewString())
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestListByUser(t *testing.T) {
	f := newRedemptionFixture(t, 300, "100")
	ctx := context.Background()
	_, err := f.svc.RedeemPoints(ctx, f.userID.String(), f.storeID.String())
	require.NoError(t, err)

	items, total, err := f.svc.ListByUser(ctx, f.userID.String(), nil, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, items, 1)

	other := uuid.NewString()
	items, total, err = f.svc.ListByUser(ctx, f.userID.String(), &other, 1, 10)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, items)
}
