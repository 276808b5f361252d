package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type storeRepository struct {
	db DBTX
}

func NewStoreRepository(db DBTX) repository.StoreRepository {
	return &storeRepository{db: db}
}

var _ repository.StoreRepository = (*storeRepository)(nil)

const storeColumns = `
	id,
	name,
	policy_type,
	points_per_currency_unit,
	points_per_visit,
	conversion_rate,
	created_at,
	updated_at
`

func (r *storeRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE id = $1`
	store, err := scanStore(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError(err)
	}
	return store, nil
}

func (r *storeRepository) Create(ctx context.Context, store *model.Store) error {
	if store.ID == uuid.Nil {
		store.ID = uuid.New()
	}

	now := time.Now().UTC()
	if store.CreatedAt.IsZero() {
		store.CreatedAt = now
	}
	if store.UpdatedAt.IsZero() {
		store.UpdatedAt = store.CreatedAt
	}

	query := `
		INSERT INTO stores (
			id, name, policy_type, points_per_currency_unit,
			points_per_visit, conversion_rate, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		store.ID,
		store.Name,
		store.Policy.Type,
		store.Policy.PointsPerCurrencyUnit,
		store.Policy.PointsPerVisit,
		store.Policy.ConversionRate,
		store.CreatedAt,
		store.UpdatedAt,
	)
	return translateError(err)
}

func (r *storeRepository) UpdatePolicy(ctx context.Context, id uuid.UUID, policy model.RewardPolicy) error {
	query := `
		UPDATE stores
		SET policy_type = $2,
			points_per_currency_unit = $3,
			points_per_visit = $4,
			conversion_rate = $5,
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(
		ctx,
		query,
		id,
		policy.Type,
		policy.PointsPerCurrencyUnit,
		policy.PointsPerVisit,
		policy.ConversionRate,
	)
	if err != nil {
		return translateError(err)
	}
	return ensureAffected(tag)
}

func (r *storeRepository) Connect(ctx context.Context, userID, storeID uuid.UUID) error {
	_, err := r.db.Exec(
		ctx,
		`INSERT INTO store_connections (user_id, store_id, connected_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id, store_id) DO NOTHING`,
		userID,
		storeID,
	)
	return translateError(err)
}

func (r *storeRepository) IsConnected(ctx context.Context, userID, storeID uuid.UUID) (bool, error) {
	var connected bool
	err := r.db.QueryRow(
		ctx,
		`SELECT EXISTS (
			SELECT 1 FROM store_connections WHERE user_id = $1 AND store_id = $2
		)`,
		userID,
		storeID,
	).Scan(&connected)
	if err != nil {
		return false, translateError(err)
	}
	return connected, nil
}

func (r *storeRepository) CountConnections(ctx context.Context, storeID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM store_connections WHERE store_id = $1`,
		storeID,
	).Scan(&total)
	if err != nil {
		return 0, translateError(err)
	}
	return total, nil
}

func (r *storeRepository) CountConnectionsByStore(ctx context.Context) (map[uuid.UUID]int64, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT s.id, COUNT(c.user_id)
		   FROM stores s
		   LEFT JOIN store_connections c ON c.store_id = s.id
		  GROUP BY s.id`,
	)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]int64)
	for rows.Next() {
		var (
			storeID uuid.UUID
			total   int64
		)
		if err := rows.Scan(&storeID, &total); err != nil {
			return nil, err
		}
		out[storeID] = total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanStore(src scanTarget) (*model.Store, error) {
	store := &model.Store{}
	err := src.Scan(
		&store.ID,
		&store.Name,
		&store.Policy.Type,
		&store.Policy.PointsPerCurrencyUnit,
		&store.Policy.PointsPerVisit,
		&store.Policy.ConversionRate,
		&store.CreatedAt,
		&store.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return store, nil
}
