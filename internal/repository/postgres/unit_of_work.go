package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyalty-hub/internal/repository"
)

type repositories struct {
	stores      repository.StoreRepository
	visits      repository.VisitRepository
	ledger      repository.LedgerRepository
	redemptions repository.RedemptionRepository
	audit       repository.AuditRepository
}

func newRepositories(db DBTX) *repositories {
	return &repositories{
		stores:      NewStoreRepository(db),
		visits:      NewVisitRepository(db),
		ledger:      NewLedgerRepository(db),
		redemptions: NewRedemptionRepository(db),
		audit:       NewAuditRepository(db),
	}
}

func (r *repositories) Stores() repository.StoreRepository           { return r.stores }
func (r *repositories) Visits() repository.VisitRepository           { return r.visits }
func (r *repositories) Ledger() repository.LedgerRepository          { return r.ledger }
func (r *repositories) Redemptions() repository.RedemptionRepository { return r.redemptions }
func (r *repositories) Audit() repository.AuditRepository            { return r.audit }

type unitOfWork struct {
	*repositories
	pool *pgxpool.Pool
}

func NewUnitOfWork(pool *pgxpool.Pool) repository.UnitOfWork {
	return &unitOfWork{
		repositories: newRepositories(pool),
		pool:         pool,
	}
}

var _ repository.UnitOfWork = (*unitOfWork)(nil)

func (u *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	if fn == nil {
		return errors.New("unit of work callback is nil")
	}

	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return translateError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, newRepositories(tx)); err != nil {
		return err
	}
	return translateError(tx.Commit(ctx))
}
