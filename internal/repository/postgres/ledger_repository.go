package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type ledgerRepository struct {
	db DBTX
}

func NewLedgerRepository(db DBTX) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

var _ repository.LedgerRepository = (*ledgerRepository)(nil)

func (r *ledgerRepository) Credit(ctx context.Context, userID, storeID uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(
		ctx,
		`INSERT INTO ledger_balances (user_id, store_id, balance, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id, store_id)
		 DO UPDATE SET balance = ledger_balances.balance + EXCLUDED.balance,
		               updated_at = NOW()
		 RETURNING balance`,
		userID,
		storeID,
		amount,
	).Scan(&balance)
	if err != nil {
		return 0, translateError(err)
	}
	return balance, nil
}

func (r *ledgerRepository) Debit(ctx context.Context, userID, storeID uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(
		ctx,
		`UPDATE ledger_balances
		    SET balance = balance - $3,
		        updated_at = NOW()
		  WHERE user_id = $1
		    AND store_id = $2
		    AND balance >= $3
		 RETURNING balance`,
		userID,
		storeID,
		amount,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, repository.ErrConditionFailed
	}
	if err != nil {
		return 0, translateError(err)
	}
	return balance, nil
}

func (r *ledgerRepository) Balance(ctx context.Context, userID, storeID uuid.UUID) (int64, error) {
	return r.readBalance(ctx, `SELECT balance FROM ledger_balances WHERE user_id = $1 AND store_id = $2`, userID, storeID)
}

func (r *ledgerRepository) LockBalance(ctx context.Context, userID, storeID uuid.UUID) (int64, error) {
	return r.readBalance(ctx, `SELECT balance FROM ledger_balances WHERE user_id = $1 AND store_id = $2 FOR UPDATE`, userID, storeID)
}

func (r *ledgerRepository) readBalance(ctx context.Context, query string, userID, storeID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, query, userID, storeID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, translateError(err)
	}
	return balance, nil
}

func (r *ledgerRepository) AppendTransaction(ctx context.Context, entry *model.LedgerTransaction) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	return translateError(r.db.QueryRow(
		ctx,
		`INSERT INTO ledger_transactions (
			user_id, store_id, delta, balance_after, reason, reference_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		entry.UserID,
		entry.StoreID,
		entry.Delta,
		entry.BalanceAfter,
		entry.Reason,
		entry.ReferenceID,
		entry.CreatedAt,
	).Scan(&entry.ID))
}

func (r *ledgerRepository) ListTransactions(
	ctx context.Context,
	userID, storeID uuid.UUID,
	page repository.Pagination,
) ([]*model.LedgerTransaction, error) {
	limit, offset := normalizePagination(page)
	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id, store_id, delta, balance_after, reason, reference_id, created_at
		   FROM ledger_transactions
		  WHERE user_id = $1
		    AND store_id = $2
		  ORDER BY id DESC
		  LIMIT $3 OFFSET $4`,
		userID,
		storeID,
		limit,
		offset,
	)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	items := make([]*model.LedgerTransaction, 0, limit)
	for rows.Next() {
		item := &model.LedgerTransaction{}
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.StoreID,
			&item.Delta,
			&item.BalanceAfter,
			&item.Reason,
			&item.ReferenceID,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
