package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type visitRepository struct {
	db DBTX
}

func NewVisitRepository(db DBTX) repository.VisitRepository {
	return &visitRepository{db: db}
}

var _ repository.VisitRepository = (*visitRepository)(nil)

const visitColumns = `
	id,
	user_id,
	store_id,
	method,
	status,
	points,
	spend,
	approved_by,
	approved_at,
	rejected_by,
	rejected_at,
	reject_reason,
	created_at,
	updated_at
`

func (r *visitRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE id = $1`
	visit, err := scanVisit(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError(err)
	}
	return visit, nil
}

func (r *visitRepository) Create(ctx context.Context, visit *model.Visit) error {
	if visit.ID == uuid.Nil {
		visit.ID = uuid.New()
	}
	if visit.Status == "" {
		visit.Status = model.VisitStatusPending
	}

	now := time.Now().UTC()
	if visit.CreatedAt.IsZero() {
		visit.CreatedAt = now
	}
	if visit.UpdatedAt.IsZero() {
		visit.UpdatedAt = visit.CreatedAt
	}

	query := `
		INSERT INTO visits (
			id, user_id, store_id, method, status,
			points, spend, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		visit.ID,
		visit.UserID,
		visit.StoreID,
		visit.Method,
		visit.Status,
		visit.Points,
		visit.Spend,
		visit.CreatedAt,
		visit.UpdatedAt,
	)
	return translateError(err)
}

func (r *visitRepository) TransitionStatus(ctx context.Context, t repository.VisitTransition) (*model.Visit, error) {
	var query string
	switch t.To {
	case model.VisitStatusApproved:
		query = `
			UPDATE visits
			   SET status = $3,
			       approved_by = $4,
			       approved_at = $5,
			       updated_at = $5
			 WHERE id = $1
			   AND status = $2
			RETURNING ` + visitColumns
	case model.VisitStatusRejected:
		query = `
			UPDATE visits
			   SET status = $3,
			       rejected_by = $4,
			       rejected_at = $5,
			       reject_reason = $6,
			       updated_at = $5
			 WHERE id = $1
			   AND status = $2
			RETURNING ` + visitColumns
	default:
		return nil, fmt.Errorf("unsupported visit transition to %q", t.To)
	}

	args := []any{t.VisitID, t.From, t.To, t.ActorID, t.At}
	if t.To == model.VisitStatusRejected {
		args = append(args, t.Reason)
	}

	visit, err := scanVisit(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrConditionFailed
	}
	if err != nil {
		return nil, translateError(err)
	}
	return visit, nil
}

func (r *visitRepository) SetPoints(ctx context.Context, id uuid.UUID, points int64) error {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE visits SET points = $2 WHERE id = $1`,
		id,
		points,
	)
	if err != nil {
		return translateError(err)
	}
	return ensureAffected(tag)
}

func (r *visitRepository) ListByStatus(
	ctx context.Context,
	storeID uuid.UUID,
	status model.VisitStatus,
	page repository.Pagination,
) ([]*model.Visit, error) {
	limit, offset := normalizePagination(page)
	rows, err := r.db.Query(
		ctx,
		`SELECT `+visitColumns+`
		   FROM visits
		  WHERE store_id = $1
		    AND status = $2
		  ORDER BY created_at ASC
		  LIMIT $3 OFFSET $4`,
		storeID,
		status,
		limit,
		offset,
	)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	items := make([]*model.Visit, 0, limit)
	for rows.Next() {
		visit, scanErr := scanVisit(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, visit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanVisit(src scanTarget) (*model.Visit, error) {
	visit := &model.Visit{}
	err := src.Scan(
		&visit.ID,
		&visit.UserID,
		&visit.StoreID,
		&visit.Method,
		&visit.Status,
		&visit.Points,
		&visit.Spend,
		&visit.ApprovedBy,
		&visit.ApprovedAt,
		&visit.RejectedBy,
		&visit.RejectedAt,
		&visit.RejectReason,
		&visit.CreatedAt,
		&visit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return visit, nil
}
