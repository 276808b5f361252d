package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"loyalty-hub/internal/model"
)

type Pagination struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

type StoreRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Store, error)
	Create(ctx context.Context, store *model.Store) error
	UpdatePolicy(ctx context.Context, id uuid.UUID, policy model.RewardPolicy) error
	Connect(ctx context.Context, userID, storeID uuid.UUID) error
	IsConnected(ctx context.Context, userID, storeID uuid.UUID) (bool, error)
	CountConnections(ctx context.Context, storeID uuid.UUID) (int64, error)
	CountConnectionsByStore(ctx context.Context) (map[uuid.UUID]int64, error)
}

// VisitRepository.TransitionStatus only matches rows still in the from status
// and returns ErrConditionFailed otherwise.
type VisitRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Visit, error)
	Create(ctx context.Context, visit *model.Visit) error
	TransitionStatus(ctx context.Context, transition VisitTransition) (*model.Visit, error)
	SetPoints(ctx context.Context, id uuid.UUID, points int64) error
	ListByStatus(ctx context.Context, storeID uuid.UUID, status model.VisitStatus, page Pagination) ([]*model.Visit, error)
}

type VisitTransition struct {
	VisitID uuid.UUID
	From    model.VisitStatus
	To      model.VisitStatus
	ActorID uuid.UUID
	At      time.Time
	Reason  *string
}

// LedgerRepository mutates balances with single conditional statements.
// Debit returns ErrConditionFailed when the balance is lower than amount.
type LedgerRepository interface {
	Credit(ctx context.Context, userID, storeID uuid.UUID, amount int64) (int64, error)
	Debit(ctx context.Context, userID, storeID uuid.UUID, amount int64) (int64, error)
	Balance(ctx context.Context, userID, storeID uuid.UUID) (int64, error)
	LockBalance(ctx context.Context, userID, storeID uuid.UUID) (int64, error)
	AppendTransaction(ctx context.Context, entry *model.LedgerTransaction) error
	ListTransactions(ctx context.Context, userID, storeID uuid.UUID, page Pagination) ([]*model.LedgerTransaction, error)
}

type RedemptionListFilter struct {
	UserID     uuid.UUID
	StoreID    *uuid.UUID
	Used       *bool
	Pagination Pagination
}

type RedemptionRepository interface {
	FindByCode(ctx context.Context, code string) (*model.Redemption, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, redemption *model.Redemption) error
	MarkUsed(ctx context.Context, code string, storeID, usedBy uuid.UUID, at time.Time) (*model.Redemption, error)
	List(ctx context.Context, filter RedemptionListFilter) ([]*model.Redemption, error)
	Count(ctx context.Context, filter RedemptionListFilter) (int64, error)
}

type AuditRepository interface {
	Create(ctx context.Context, log *model.AuditLog) error
}

// Repositories groups the repositories bound to one database handle, either
// the pool or an open transaction.
type Repositories interface {
	Stores() StoreRepository
	Visits() VisitRepository
	Ledger() LedgerRepository
	Redemptions() RedemptionRepository
	Audit() AuditRepository
}

// UnitOfWork commits every write made through the tx-scoped Repositories when
// fn returns nil and rolls all of them back otherwise.
type UnitOfWork interface {
	Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}
