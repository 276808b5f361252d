package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"loyalty-hub/internal/event"
	"loyalty-hub/internal/metrics"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

const (
	pendingVisitDefaultPage = 1
	pendingVisitDefaultSize = 50
	pendingVisitMaxPageSize = 200

	maxRejectReasonLength = 500
)

// ApprovalResult is what one committed approval produced.
type ApprovalResult struct {
	Visit          *model.Visit      `json:"visit"`
	PointsEarned   int64             `json:"points_earned"`
	BalanceAfter   int64             `json:"balance_after"`
	AutoRedemption *model.Redemption `json:"auto_redemption,omitempty"`
}

// VisitService drives visits from pending to a terminal status. Approval
// credits the ledger and settles any auto redemption in the same unit of work.
type VisitService struct {
	uow         repository.UnitOfWork
	redemptions *RedemptionService
	eventBus    *event.Bus
	logger      *zap.Logger
	now         func() time.Time
}

func NewVisitService(
	uow repository.UnitOfWork,
	redemptions *RedemptionService,
	eventBus *event.Bus,
	logger *zap.Logger,
) *VisitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if redemptions == nil {
		redemptions = NewRedemptionService(uow, nil, eventBus, logger)
	}

	return &VisitService{
		uow:         uow,
		redemptions: redemptions,
		eventBus:    eventBus,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *VisitService) RequestVisit(
	ctx context.Context,
	userID, storeID string,
	method model.VisitMethod,
	spend decimal.Decimal,
) (*model.Visit, error) {
	userUUID, storeUUID, err := parsePair(userID, storeID)
	if err != nil {
		return nil, err
	}
	switch method {
	case model.VisitMethodQR, model.VisitMethodManual:
	default:
		return nil, ErrInvalidInput
	}
	if spend.IsNegative() {
		return nil, ErrInvalidInput
	}

	if _, err := s.uow.Stores().FindByID(ctx, storeUUID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrStoreNotFound
		}
		return nil, err
	}
	connected, err := s.uow.Stores().IsConnected(ctx, userUUID, storeUUID)
	if err != nil {
		return nil, err
	}
	if !connected {
		return nil, ErrNotConnectedToStore
	}

	now := s.now()
	visit := &model.Visit{
		ID:        uuid.New(),
		UserID:    userUUID,
		StoreID:   storeUUID,
		Method:    method,
		Status:    model.VisitStatusPending,
		Spend:     spend,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.uow.Visits().Create(ctx, visit); err != nil {
		return nil, fmt.Errorf("create visit: %w", err)
	}

	return visit, nil
}

// ApproveVisit moves a pending visit to approved. staffStoreID, when not
// empty, must match the visit's store. manualPoints overrides the policy.
func (s *VisitService) ApproveVisit(
	ctx context.Context,
	staffStoreID, visitID, approverID string,
	manualPoints *int64,
) (*ApprovalResult, error) {
	visitUUID, err := parseID(visitID)
	if err != nil {
		return nil, err
	}
	approverUUID, err := parseID(approverID)
	if err != nil {
		return nil, err
	}
	scope, err := parseScope(staffStoreID)
	if err != nil {
		return nil, err
	}
	if manualPoints != nil && *manualPoints < 0 {
		return nil, ErrInvalidInput
	}

	started := time.Now()
	result := &ApprovalResult{}
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		visit, err := s.transition(ctx, tx, repository.VisitTransition{
			VisitID: visitUUID,
			From:    model.VisitStatusPending,
			To:      model.VisitStatusApproved,
			ActorID: approverUUID,
			At:      s.now(),
		})
		if err != nil {
			return err
		}
		if scope != uuid.Nil && visit.StoreID != scope {
			return ErrNotAuthorizedForStore
		}

		store, err := tx.Stores().FindByID(ctx, visit.StoreID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrStoreNotFound
			}
			return err
		}

		points := ComputePoints(store.Policy, visit.Spend)
		if manualPoints != nil {
			points = *manualPoints
		}
		if err := tx.Visits().SetPoints(ctx, visit.ID, points); err != nil {
			return fmt.Errorf("set visit points: %w", err)
		}
		visit.Points = points

		balance, err := creditTx(ctx, tx, visit.UserID, visit.StoreID, points, model.LedgerReasonVisitApproved, &visit.ID)
		if err != nil {
			return err
		}

		redemption, err := s.redemptions.redeemTx(ctx, tx, visit.UserID, visit.StoreID, store.Policy, true)
		if err != nil {
			return err
		}
		if redemption != nil {
			balance -= redemption.PointsUsed
		}

		result.Visit = visit
		result.PointsEarned = points
		result.BalanceAfter = balance
		result.AutoRedemption = redemption
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrSerialization) {
			return nil, fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
		}
		return nil, err
	}

	metrics.ObserveVisitApprovalDuration(time.Since(started))
	metrics.IncVisitProcessed(string(model.VisitStatusApproved))
	metrics.AddPointsCredited(result.PointsEarned)

	visit := result.Visit
	s.writeAudit(ctx, &model.AuditLog{
		ActorID:      &approverUUID,
		StoreID:      &visit.StoreID,
		Action:       "visit.approve",
		ResourceType: strPtr("visit"),
		ResourceID:   strPtr(visit.ID.String()),
		OldValue:     map[string]interface{}{"status": string(model.VisitStatusPending)},
		NewValue: map[string]interface{}{
			"status": string(model.VisitStatusApproved),
			"points": result.PointsEarned,
		},
	})
	if s.eventBus != nil {
		s.eventBus.Publish(event.EventVisitApproved, event.VisitApprovedPayload{
			VisitID:      visit.ID.String(),
			UserID:       visit.UserID.String(),
			StoreID:      visit.StoreID.String(),
			PointsEarned: result.PointsEarned,
			BalanceAfter: result.BalanceAfter,
			ApprovedBy:   approverUUID.String(),
			Timestamp:    time.Now().UTC(),
		})
	}
	s.redemptions.afterRedemption(ctx, approverUUID, result.AutoRedemption)

	return result, nil
}

// RejectVisit moves a pending visit to rejected without touching the ledger.
func (s *VisitService) RejectVisit(
	ctx context.Context,
	staffStoreID, visitID, approverID, reason string,
) (*model.Visit, error) {
	visitUUID, err := parseID(visitID)
	if err != nil {
		return nil, err
	}
	approverUUID, err := parseID(approverID)
	if err != nil {
		return nil, err
	}
	scope, err := parseScope(staffStoreID)
	if err != nil {
		return nil, err
	}

	var rejectReason *string
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		if runes := []rune(trimmed); len(runes) > maxRejectReasonLength {
			trimmed = string(runes[:maxRejectReasonLength])
		}
		rejectReason = &trimmed
	}

	var visit *model.Visit
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		var txErr error
		visit, txErr = s.transition(ctx, tx, repository.VisitTransition{
			VisitID: visitUUID,
			From:    model.VisitStatusPending,
			To:      model.VisitStatusRejected,
			ActorID: approverUUID,
			At:      s.now(),
			Reason:  rejectReason,
		})
		if txErr != nil {
			return txErr
		}
		if scope != uuid.Nil && visit.StoreID != scope {
			return ErrNotAuthorizedForStore
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrSerialization) {
			return nil, fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
		}
		return nil, err
	}

	metrics.IncVisitProcessed(string(model.VisitStatusRejected))
	newValue := map[string]interface{}{"status": string(model.VisitStatusRejected)}
	if rejectReason != nil {
		newValue["reason"] = *rejectReason
	}
	s.writeAudit(ctx, &model.AuditLog{
		ActorID:      &approverUUID,
		StoreID:      &visit.StoreID,
		Action:       "visit.reject",
		ResourceType: strPtr("visit"),
		ResourceID:   strPtr(visit.ID.String()),
		OldValue:     map[string]interface{}{"status": string(model.VisitStatusPending)},
		NewValue:     newValue,
	})
	if s.eventBus != nil {
		payload := event.VisitRejectedPayload{
			VisitID:    visit.ID.String(),
			UserID:     visit.UserID.String(),
			StoreID:    visit.StoreID.String(),
			RejectedBy: approverUUID.String(),
			Timestamp:  time.Now().UTC(),
		}
		if rejectReason != nil {
			payload.Reason = *rejectReason
		}
		s.eventBus.Publish(event.EventVisitRejected, payload)
	}

	return visit, nil
}

func (s *VisitService) ListPending(ctx context.Context, storeID string, page, pageSize int) ([]*model.Visit, error) {
	storeUUID, err := parseID(storeID)
	if err != nil {
		return nil, err
	}

	page, pageSize = normalizePage(page, pageSize, pendingVisitDefaultPage, pendingVisitDefaultSize, pendingVisitMaxPageSize)
	return s.uow.Visits().ListByStatus(ctx, storeUUID, model.VisitStatusPending, toPagination(page, pageSize))
}

// transition applies the conditional status update and explains a miss.
func (s *VisitService) transition(
	ctx context.Context,
	tx repository.Repositories,
	transition repository.VisitTransition,
) (*model.Visit, error) {
	visit, err := tx.Visits().TransitionStatus(ctx, transition)
	if err == nil {
		return visit, nil
	}
	if !errors.Is(err, repository.ErrConditionFailed) {
		return nil, fmt.Errorf("transition visit: %w", err)
	}

	if _, findErr := tx.Visits().FindByID(ctx, transition.VisitID); findErr != nil {
		if errors.Is(findErr, repository.ErrNotFound) {
			return nil, ErrVisitNotFound
		}
		return nil, findErr
	}
	return nil, ErrVisitNotPending
}

func (s *VisitService) writeAudit(ctx context.Context, log *model.AuditLog) {
	if err := s.uow.Audit().Create(ctx, log); err != nil {
		s.logger.Warn("write audit log failed", zap.String("action", log.Action), zap.Error(err))
	}
}

func parseScope(raw string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, nil
	}
	return parseID(raw)
}
