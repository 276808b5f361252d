package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loyalty-hub/internal/metrics"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

const (
	ledgerHistoryDefaultPage = 1
	ledgerHistoryDefaultSize = 20
	ledgerHistoryMaxPageSize = 200
)

// LedgerService owns the per user and store points balance.
type LedgerService struct {
	uow    repository.UnitOfWork
	logger *zap.Logger
}

func NewLedgerService(uow repository.UnitOfWork, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LedgerService{
		uow:    uow,
		logger: logger,
	}
}

func (s *LedgerService) BalanceOf(ctx context.Context, userID, storeID string) (int64, error) {
	userUUID, storeUUID, err := parsePair(userID, storeID)
	if err != nil {
		return 0, err
	}
	return s.uow.Ledger().Balance(ctx, userUUID, storeUUID)
}

// Credit adds amount to the pair in its own unit of work and returns the new balance.
func (s *LedgerService) Credit(
	ctx context.Context,
	userID, storeID string,
	amount int64,
	reason model.LedgerReason,
	referenceID *uuid.UUID,
) (int64, error) {
	userUUID, storeUUID, err := parsePair(userID, storeID)
	if err != nil {
		return 0, err
	}

	var balance int64
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		var txErr error
		balance, txErr = creditTx(ctx, tx, userUUID, storeUUID, amount, reason, referenceID)
		return txErr
	})
	if err != nil {
		return 0, err
	}

	metrics.AddPointsCredited(amount)
	return balance, nil
}

// Debit removes amount from the pair and fails with ErrInsufficientBalance
// rather than going below zero.
func (s *LedgerService) Debit(
	ctx context.Context,
	userID, storeID string,
	amount int64,
	reason model.LedgerReason,
	referenceID *uuid.UUID,
) (int64, error) {
	userUUID, storeUUID, err := parsePair(userID, storeID)
	if err != nil {
		return 0, err
	}

	var balance int64
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		var txErr error
		balance, txErr = debitTx(ctx, tx, userUUID, storeUUID, amount, reason, referenceID)
		return txErr
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *LedgerService) History(
	ctx context.Context,
	userID, storeID string,
	page, pageSize int,
) ([]*model.LedgerTransaction, error) {
	userUUID, storeUUID, err := parsePair(userID, storeID)
	if err != nil {
		return nil, err
	}

	page, pageSize = normalizePage(page, pageSize, ledgerHistoryDefaultPage, ledgerHistoryDefaultSize, ledgerHistoryMaxPageSize)
	return s.uow.Ledger().ListTransactions(ctx, userUUID, storeUUID, toPagination(page, pageSize))
}

func creditTx(
	ctx context.Context,
	tx repository.Repositories,
	userID, storeID uuid.UUID,
	amount int64,
	reason model.LedgerReason,
	referenceID *uuid.UUID,
) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidInput
	}

	balance, err := tx.Ledger().Credit(ctx, userID, storeID, amount)
	if err != nil {
		return 0, fmt.Errorf("credit ledger: %w", err)
	}
	if amount == 0 {
		return balance, nil
	}

	if err := tx.Ledger().AppendTransaction(ctx, &model.LedgerTransaction{
		UserID:       userID,
		StoreID:      storeID,
		Delta:        amount,
		BalanceAfter: balance,
		Reason:       reason,
		ReferenceID:  referenceID,
	}); err != nil {
		return 0, fmt.Errorf("append ledger transaction: %w", err)
	}
	return balance, nil
}

func debitTx(
	ctx context.Context,
	tx repository.Repositories,
	userID, storeID uuid.UUID,
	amount int64,
	reason model.LedgerReason,
	referenceID *uuid.UUID,
) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidInput
	}

	balance, err := tx.Ledger().Debit(ctx, userID, storeID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrConditionFailed) {
			return 0, ErrInsufficientBalance
		}
		return 0, fmt.Errorf("debit ledger: %w", err)
	}
	if amount == 0 {
		return balance, nil
	}

	if err := tx.Ledger().AppendTransaction(ctx, &model.LedgerTransaction{
		UserID:       userID,
		StoreID:      storeID,
		Delta:        -amount,
		BalanceAfter: balance,
		Reason:       reason,
		ReferenceID:  referenceID,
	}); err != nil {
		return 0, fmt.Errorf("append ledger transaction: %w", err)
	}
	return balance, nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidInput
	}
	return id, nil
}

func parsePair(userID, storeID string) (uuid.UUID, uuid.UUID, error) {
	userUUID, err := parseID(userID)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	storeUUID, err := parseID(storeID)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userUUID, storeUUID, nil
}

func normalizePage(page, pageSize, defaultPage, defaultSize, maxSize int) (int, int) {
	if page <= 0 {
		page = defaultPage
	}
	if pageSize <= 0 {
		pageSize = defaultSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}

func toPagination(page, pageSize int) repository.Pagination {
	// #nosec G115 -- page size is bounded by normalizePage.
	return repository.Pagination{
		Limit:  int32(pageSize),
		Offset: int32((page - 1) * pageSize),
	}
}
