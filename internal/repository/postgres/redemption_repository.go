package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type redemptionRepository struct {
	db DBTX
}

func NewRedemptionRepository(db DBTX) repository.RedemptionRepository {
	return &redemptionRepository{db: db}
}

var _ repository.RedemptionRepository = (*redemptionRepository)(nil)

const redemptionColumns = `
	id,
	user_id,
	store_id,
	points_used,
	reward_value,
	code,
	auto_triggered,
	used,
	used_at,
	used_by,
	created_at
`

func (r *redemptionRepository) FindByCode(ctx context.Context, code string) (*model.Redemption, error) {
	query := `SELECT ` + redemptionColumns + ` FROM redemptions WHERE code = $1`
	item, err := scanRedemption(r.db.QueryRow(ctx, query, code))
	if err != nil {
		return nil, translateError(err)
	}
	return item, nil
}

func (r *redemptionRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM redemptions WHERE code = $1)`,
		code,
	).Scan(&exists)
	if err != nil {
		return false, translateError(err)
	}
	return exists, nil
}

func (r *redemptionRepository) Create(ctx context.Context, item *model.Redemption) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO redemptions (
			id, user_id, store_id, points_used, reward_value,
			code, auto_triggered, used, used_at, used_by,
			created_at
		)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11
		)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		item.ID,
		item.UserID,
		item.StoreID,
		item.PointsUsed,
		item.RewardValue,
		item.Code,
		item.AutoTriggered,
		item.Used,
		item.UsedAt,
		item.UsedBy,
		item.CreatedAt,
	)
	return translateError(err)
}

func (r *redemptionRepository) MarkUsed(
	ctx context.Context,
	code string,
	storeID, usedBy uuid.UUID,
	at time.Time,
) (*model.Redemption, error) {
	item, err := scanRedemption(r.db.QueryRow(
		ctx,
		`UPDATE redemptions
		    SET used = TRUE,
		        used_at = $3,
		        used_by = $4
		  WHERE code = $1
		    AND store_id = $2
		    AND used = FALSE
		 RETURNING `+redemptionColumns,
		code,
		storeID,
		at,
		usedBy,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrConditionFailed
	}
	if err != nil {
		return nil, translateError(err)
	}
	return item, nil
}

func (r *redemptionRepository) List(ctx context.Context, filter repository.RedemptionListFilter) ([]*model.Redemption, error) {
	where, args := buildRedemptionFilter(filter)
	limit, offset := normalizePagination(filter.Pagination)
	args = append(args, limit, offset)

	query := `SELECT ` + redemptionColumns + ` FROM redemptions` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	items := make([]*model.Redemption, 0, limit)
	for rows.Next() {
		item, scanErr := scanRedemption(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *redemptionRepository) Count(ctx context.Context, filter repository.RedemptionListFilter) (int64, error) {
	where, args := buildRedemptionFilter(filter)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM redemptions`+where, args...).Scan(&total); err != nil {
		return 0, translateError(err)
	}
	return total, nil
}

func buildRedemptionFilter(filter repository.RedemptionListFilter) (string, []any) {
	args := make([]any, 0, 5)
	conditions := make([]string, 0, 3)

	args = append(args, filter.UserID)
	conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))

	if filter.StoreID != nil {
		args = append(args, *filter.StoreID)
		conditions = append(conditions, fmt.Sprintf("store_id = $%d", len(args)))
	}
	if filter.Used != nil {
		args = append(args, *filter.Used)
		conditions = append(conditions, fmt.Sprintf("used = $%d", len(args)))
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanRedemption(src scanTarget) (*model.Redemption, error) {
	item := &model.Redemption{}
	if err := src.Scan(
		&item.ID,
		&item.UserID,
		&item.StoreID,
		&item.PointsUsed,
		&item.RewardValue,
		&item.Code,
		&item.AutoTriggered,
		&item.Used,
		&item.UsedAt,
		&item.UsedBy,
		&item.CreatedAt,
	); err != nil {
		return nil, err
	}
	return item, nil
}
