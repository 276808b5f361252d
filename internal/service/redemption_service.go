package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loyalty-hub/internal/event"
	"loyalty-hub/internal/metrics"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

const (
	redemptionListDefaultPage = 1
	redemptionListDefaultSize = 20
	redemptionListMaxPageSize = 200

	// Replays of a redemption whose code lost the insert race.
	redeemConflictRetries = 3
)

type RedemptionService struct {
	uow      repository.UnitOfWork
	codes    *CodeGenerator
	eventBus *event.Bus
	logger   *zap.Logger
	now      func() time.Time
}

func NewRedemptionService(
	uow repository.UnitOfWork,
	codes *CodeGenerator,
	eventBus *event.Bus,
	logger *zap.Logger,
) *RedemptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if codes == nil {
		codes = NewCodeGenerator(DefaultCodeAttempts, logger)
	}

	return &RedemptionService{
		uow:      uow,
		codes:    codes,
		eventBus: eventBus,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RedeemPoints converts every whole reward unit of the user's balance at the
// store into one redemption record.
func (s *RedemptionService) RedeemPoints(ctx context.Context, userID, storeID string) (*model.Redemption, error) {
	userUUID, storeUUID, err := parsePair(userID, storeID)
	if err != nil {
		return nil, err
	}

	var redemption *model.Redemption
	for attempt := 1; ; attempt++ {
		redemption, err = s.redeemOnce(ctx, userUUID, storeUUID)
		if !errors.Is(err, ErrCodeConflict) || attempt >= redeemConflictRetries {
			break
		}
		s.logger.Warn("redemption code conflict, retrying",
			zap.String("user_id", userID),
			zap.String("store_id", storeID),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		return nil, err
	}

	s.afterRedemption(ctx, userUUID, redemption)
	return redemption, nil
}

func (s *RedemptionService) redeemOnce(ctx context.Context, userID, storeID uuid.UUID) (*model.Redemption, error) {
	var redemption *model.Redemption
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		store, err := tx.Stores().FindByID(ctx, storeID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrStoreNotFound
			}
			return err
		}

		connected, err := tx.Stores().IsConnected(ctx, userID, storeID)
		if err != nil {
			return err
		}
		if !connected {
			return ErrNotConnectedToStore
		}

		redemption, err = s.redeemTx(ctx, tx, userID, storeID, store.Policy, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return redemption, nil
}

// redeemTx runs inside the caller's unit of work. The balance row is locked
// before it is read so two redemptions of one pair cannot spend it twice. In
// auto mode a balance below one reward unit yields (nil, nil).
func (s *RedemptionService) redeemTx(
	ctx context.Context,
	tx repository.Repositories,
	userID, storeID uuid.UUID,
	policy model.RewardPolicy,
	auto bool,
) (*model.Redemption, error) {
	balance, err := tx.Ledger().LockBalance(ctx, userID, storeID)
	if err != nil {
		return nil, fmt.Errorf("lock ledger balance: %w", err)
	}

	rewardValue, pointsToConsume, err := redeemableUnits(balance, policy.ConversionRate)
	if err != nil {
		return nil, err
	}
	if !rewardValue.IsPositive() {
		if auto {
			return nil, nil
		}
		return nil, ErrInsufficientPoints
	}

	code, err := s.codes.Generate(ctx, tx.Redemptions().CodeExists)
	if err != nil {
		return nil, err
	}

	redemption := &model.Redemption{
		ID:            uuid.New(),
		UserID:        userID,
		StoreID:       storeID,
		PointsUsed:    pointsToConsume,
		RewardValue:   rewardValue,
		Code:          code,
		AutoTriggered: auto,
		Used:          false,
		CreatedAt:     s.now(),
	}

	if _, err := debitTx(ctx, tx, userID, storeID, pointsToConsume, model.LedgerReasonRedemption, &redemption.ID); err != nil {
		return nil, err
	}

	if err := tx.Redemptions().Create(ctx, redemption); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrCodeConflict
		}
		return nil, fmt.Errorf("create redemption: %w", err)
	}

	return redemption, nil
}

// MarkUsed flips a redemption to used exactly once. The code is looked up
// globally, but only the store that issued it may consume it.
func (s *RedemptionService) MarkUsed(ctx context.Context, storeID, code, staffID string) (*model.Redemption, error) {
	storeUUID, err := parseID(storeID)
	if err != nil {
		return nil, err
	}
	staffUUID, err := parseID(staffID)
	if err != nil {
		return nil, err
	}
	normalizedCode := strings.TrimSpace(code)
	if !isRedemptionCode(normalizedCode) {
		return nil, ErrInvalidInput
	}

	redemption, err := s.uow.Redemptions().MarkUsed(ctx, normalizedCode, storeUUID, staffUUID, s.now())
	if err != nil {
		if !errors.Is(err, repository.ErrConditionFailed) {
			return nil, err
		}
		return nil, s.explainMarkUsedMiss(ctx, storeUUID, normalizedCode)
	}

	metrics.IncRedemptionUsed()
	s.writeAudit(ctx, &model.AuditLog{
		ActorID:      &staffUUID,
		StoreID:      &storeUUID,
		Action:       "redemption.use",
		ResourceType: strPtr("redemption"),
		ResourceID:   strPtr(redemption.ID.String()),
		OldValue:     map[string]interface{}{"used": false},
		NewValue:     map[string]interface{}{"used": true, "code": redemption.Code},
	})
	if s.eventBus != nil {
		s.eventBus.Publish(event.EventRedemptionUsed, redemptionPayload(redemption))
	}

	return redemption, nil
}

func (s *RedemptionService) explainMarkUsedMiss(ctx context.Context, storeID uuid.UUID, code string) error {
	existing, err := s.uow.Redemptions().FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrCodeNotFound
		}
		return err
	}
	if existing.StoreID != storeID {
		return ErrNotAuthorizedForStore
	}
	if existing.Used {
		return ErrAlreadyUsed
	}
	return ErrConcurrencyConflict
}

// Verify lets staff inspect a code before accepting it.
func (s *RedemptionService) Verify(ctx context.Context, storeID, code string) (*model.Redemption, error) {
	storeUUID, err := parseID(storeID)
	if err != nil {
		return nil, err
	}
	normalizedCode := strings.TrimSpace(code)
	if !isRedemptionCode(normalizedCode) {
		return nil, ErrInvalidInput
	}

	redemption, err := s.uow.Redemptions().FindByCode(ctx, normalizedCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	if redemption.StoreID != storeUUID {
		return nil, ErrNotAuthorizedForStore
	}
	return redemption, nil
}

func (s *RedemptionService) ListByUser(
	ctx context.Context,
	userID string,
	storeID *string,
	page, pageSize int,
) ([]*model.Redemption, int64, error) {
	userUUID, err := parseID(userID)
	if err != nil {
		return nil, 0, err
	}

	filter := repository.RedemptionListFilter{UserID: userUUID}
	if storeID != nil && strings.TrimSpace(*storeID) != "" {
		storeUUID, err := parseID(*storeID)
		if err != nil {
			return nil, 0, err
		}
		filter.StoreID = &storeUUID
	}

	page, pageSize = normalizePage(page, pageSize, redemptionListDefaultPage, redemptionListDefaultSize, redemptionListMaxPageSize)
	filter.Pagination = toPagination(page, pageSize)

	items, err := s.uow.Redemptions().List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.uow.Redemptions().Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// afterRedemption runs once the redemption is committed.
func (s *RedemptionService) afterRedemption(ctx context.Context, actorID uuid.UUID, redemption *model.Redemption) {
	if redemption == nil {
		return
	}

	metrics.ObserveRedemption(redemption.AutoTriggered, redemption.PointsUsed)
	s.writeAudit(ctx, &model.AuditLog{
		ActorID:      &actorID,
		StoreID:      &redemption.StoreID,
		Action:       "redemption.create",
		ResourceType: strPtr("redemption"),
		ResourceID:   strPtr(redemption.ID.String()),
		NewValue: map[string]interface{}{
			"code":           redemption.Code,
			"points_used":    redemption.PointsUsed,
			"reward_value":   redemption.RewardValue.String(),
			"auto_triggered": redemption.AutoTriggered,
		},
	})
	if s.eventBus != nil {
		s.eventBus.Publish(event.EventRedemptionCreated, redemptionPayload(redemption))
	}
}

func (s *RedemptionService) writeAudit(ctx context.Context, log *model.AuditLog) {
	if s.uow == nil || log == nil {
		return
	}
	if err := s.uow.Audit().Create(ctx, log); err != nil {
		s.logger.Warn("write audit log failed", zap.String("action", log.Action), zap.Error(err))
	}
}

func redemptionPayload(redemption *model.Redemption) event.RedemptionPayload {
	return event.RedemptionPayload{
		RedemptionID:  redemption.ID.String(),
		UserID:        redemption.UserID.String(),
		StoreID:       redemption.StoreID.String(),
		Code:          redemption.Code,
		RewardValue:   redemption.RewardValue.String(),
		PointsUsed:    redemption.PointsUsed,
		AutoTriggered: redemption.AutoTriggered,
		Timestamp:     time.Now().UTC(),
	}
}
