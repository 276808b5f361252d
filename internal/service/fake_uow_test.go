package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type ledgerKey struct {
	userID  uuid.UUID
	storeID uuid.UUID
}

type memState struct {
	stores       map[uuid.UUID]model.Store
	connections  map[ledgerKey]bool
	balances     map[ledgerKey]int64
	transactions []model.LedgerTransaction
	visits       map[uuid.UUID]model.Visit
	redemptions  map[string]model.Redemption
	audit        []model.AuditLog
}

func newMemState() *memState {
	return &memState{
		stores:      make(map[uuid.UUID]model.Store),
		connections: make(map[ledgerKey]bool),
		balances:    make(map[ledgerKey]int64),
		visits:      make(map[uuid.UUID]model.Visit),
		redemptions: make(map[string]model.Redemption),
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for k, v := range s.stores {
		out.stores[k] = v
	}
	for k, v := range s.connections {
		out.connections[k] = v
	}
	for k, v := range s.balances {
		out.balances[k] = v
	}
	for k, v := range s.visits {
		out.visits[k] = v
	}
	for k, v := range s.redemptions {
		out.redemptions[k] = v
	}
	out.transactions = append(out.transactions, s.transactions...)
	out.audit = append(out.audit, s.audit...)
	return out
}

// fakeUnitOfWork serializes transactions behind one mutex and restores a
// snapshot when the callback fails, which is enough to observe atomicity.
type fakeUnitOfWork struct {
	mu    sync.Mutex
	state *memState

	// createRedemptionErrs are returned, in order, by Redemptions().Create.
	createRedemptionErrs []error
	commits              int
}

func newFakeUnitOfWork() *fakeUnitOfWork {
	return &fakeUnitOfWork{state: newMemState()}
}

func (u *fakeUnitOfWork) direct() *memRepos { return &memRepos{uow: u} }

func (u *fakeUnitOfWork) Stores() repository.StoreRepository { return u.direct().Stores() }
func (u *fakeUnitOfWork) Visits() repository.VisitRepository { return u.direct().Visits() }
func (u *fakeUnitOfWork) Ledger() repository.LedgerRepository {
	return u.direct().Ledger()
}
func (u *fakeUnitOfWork) Redemptions() repository.RedemptionRepository {
	return u.direct().Redemptions()
}
func (u *fakeUnitOfWork) Audit() repository.AuditRepository { return u.direct().Audit() }

func (u *fakeUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	snapshot := u.state.clone()
	if err := fn(ctx, &memRepos{uow: u, inTx: true}); err != nil {
		u.state = snapshot
		return err
	}
	u.commits++
	return nil
}

func (u *fakeUnitOfWork) seedStore(t *testing.T, policy model.RewardPolicy) uuid.UUID {
	t.Helper()
	id := uuid.New()
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state.stores[id] = model.Store{ID: id, Name: "store-" + id.String()[:8], Policy: policy}
	return id
}

func (u *fakeUnitOfWork) seedConnection(userID, storeID uuid.UUID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state.connections[ledgerKey{userID, storeID}] = true
}

func (u *fakeUnitOfWork) seedBalance(userID, storeID uuid.UUID, balance int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state.balances[ledgerKey{userID, storeID}] = balance
}

func (u *fakeUnitOfWork) seedVisit(userID, storeID uuid.UUID, spend decimal.Decimal) uuid.UUID {
	id := uuid.New()
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state.visits[id] = model.Visit{
		ID:        id,
		UserID:    userID,
		StoreID:   storeID,
		Method:    model.VisitMethodQR,
		Status:    model.VisitStatusPending,
		Spend:     spend,
		CreatedAt: time.Now().UTC(),
	}
	return id
}

func (u *fakeUnitOfWork) balance(userID, storeID uuid.UUID) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state.balances[ledgerKey{userID, storeID}]
}

func (u *fakeUnitOfWork) visit(id uuid.UUID) model.Visit {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state.visits[id]
}

func (u *fakeUnitOfWork) redemptionCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.state.redemptions)
}

func (u *fakeUnitOfWork) transactionsFor(userID, storeID uuid.UUID) []model.LedgerTransaction {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]model.LedgerTransaction, 0)
	for _, item := range u.state.transactions {
		if item.UserID == userID && item.StoreID == storeID {
			out = append(out, item)
		}
	}
	return out
}

type memRepos struct {
	uow  *fakeUnitOfWork
	inTx bool
}

func (r *memRepos) with(fn func(state *memState) error) error {
	if !r.inTx {
		r.uow.mu.Lock()
		defer r.uow.mu.Unlock()
	}
	return fn(r.uow.state)
}

func (r *memRepos) Stores() repository.StoreRepository           { return memStores{r} }
func (r *memRepos) Visits() repository.VisitRepository           { return memVisits{r} }
func (r *memRepos) Ledger() repository.LedgerRepository          { return memLedger{r} }
func (r *memRepos) Redemptions() repository.RedemptionRepository { return memRedemptions{r} }
func (r *memRepos) Audit() repository.AuditRepository            { return memAudit{r} }

type memStores struct{ r *memRepos }

func (m memStores) FindByID(_ context.Context, id uuid.UUID) (*model.Store, error) {
	var out *model.Store
	err := m.r.with(func(state *memState) error {
		store, ok := state.stores[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &store
		return nil
	})
	return out, err
}

func (m memStores) Create(_ context.Context, store *model.Store) error {
	return m.r.with(func(state *memState) error {
		state.stores[store.ID] = *store
		return nil
	})
}

func (m memStores) UpdatePolicy(_ context.Context, id uuid.UUID, policy model.RewardPolicy) error {
	return m.r.with(func(state *memState) error {
		store, ok := state.stores[id]
		if !ok {
			return repository.ErrNotFound
		}
		store.Policy = policy
		state.stores[id] = store
		return nil
	})
}

func (m memStores) Connect(_ context.Context, userID, storeID uuid.UUID) error {
	return m.r.with(func(state *memState) error {
		state.connections[ledgerKey{userID, storeID}] = true
		return nil
	})
}

func (m memStores) IsConnected(_ context.Context, userID, storeID uuid.UUID) (bool, error) {
	var connected bool
	err := m.r.with(func(state *memState) error {
		connected = state.connections[ledgerKey{userID, storeID}]
		return nil
	})
	return connected, err
}

func (m memStores) CountConnections(_ context.Context, storeID uuid.UUID) (int64, error) {
	var total int64
	err := m.r.with(func(state *memState) error {
		for key := range state.connections {
			if key.storeID == storeID {
				total++
			}
		}
		return nil
	})
	return total, err
}

func (m memStores) CountConnectionsByStore(_ context.Context) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64)
	err := m.r.with(func(state *memState) error {
		for id := range state.stores {
			out[id] = 0
		}
		for key := range state.connections {
			out[key.storeID]++
		}
		return nil
	})
	return out, err
}

type memVisits struct{ r *memRepos }

func (m memVisits) FindByID(_ context.Context, id uuid.UUID) (*model.Visit, error) {
	var out *model.Visit
	err := m.r.with(func(state *memState) error {
		visit, ok := state.visits[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &visit
		return nil
	})
	return out, err
}

func (m memVisits) Create(_ context.Context, visit *model.Visit) error {
	return m.r.with(func(state *memState) error {
		state.visits[visit.ID] = *visit
		return nil
	})
}

func (m memVisits) TransitionStatus(_ context.Context, t repository.VisitTransition) (*model.Visit, error) {
	var out *model.Visit
	err := m.r.with(func(state *memState) error {
		visit, ok := state.visits[t.VisitID]
		if !ok || visit.Status != t.From {
			return repository.ErrConditionFailed
		}
		visit.Status = t.To
		at := t.At
		actor := t.ActorID
		switch t.To {
		case model.VisitStatusApproved:
			visit.ApprovedBy = &actor
			visit.ApprovedAt = &at
		case model.VisitStatusRejected:
			visit.RejectedBy = &actor
			visit.RejectedAt = &at
			visit.RejectReason = t.Reason
		}
		visit.UpdatedAt = at
		state.visits[t.VisitID] = visit
		out = &visit
		return nil
	})
	return out, err
}

func (m memVisits) SetPoints(_ context.Context, id uuid.UUID, points int64) error {
	return m.r.with(func(state *memState) error {
		visit, ok := state.visits[id]
		if !ok {
			return repository.ErrNotFound
		}
		visit.Points = points
		state.visits[id] = visit
		return nil
	})
}

func (m memVisits) ListByStatus(
	_ context.Context,
	storeID uuid.UUID,
	status model.VisitStatus,
	page repository.Pagination,
) ([]*model.Visit, error) {
	out := make([]*model.Visit, 0)
	err := m.r.with(func(state *memState) error {
		for _, visit := range state.visits {
			if visit.StoreID == storeID && visit.Status == status {
				item := visit
				out = append(out, &item)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, page), err
}

type memLedger struct{ r *memRepos }

func (m memLedger) Credit(_ context.Context, userID, storeID uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := m.r.with(func(state *memState) error {
		key := ledgerKey{userID, storeID}
		state.balances[key] += amount
		balance = state.balances[key]
		return nil
	})
	return balance, err
}

func (m memLedger) Debit(_ context.Context, userID, storeID uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := m.r.with(func(state *memState) error {
		key := ledgerKey{userID, storeID}
		current, ok := state.balances[key]
		if !ok || current < amount {
			return repository.ErrConditionFailed
		}
		state.balances[key] = current - amount
		balance = state.balances[key]
		return nil
	})
	return balance, err
}

func (m memLedger) Balance(_ context.Context, userID, storeID uuid.UUID) (int64, error) {
	var balance int64
	err := m.r.with(func(state *memState) error {
		balance = state.balances[ledgerKey{userID, storeID}]
		return nil
	})
	return balance, err
}

func (m memLedger) LockBalance(ctx context.Context, userID, storeID uuid.UUID) (int64, error) {
	return m.Balance(ctx, userID, storeID)
}

func (m memLedger) AppendTransaction(_ context.Context, entry *model.LedgerTransaction) error {
	return m.r.with(func(state *memState) error {
		entry.ID = int64(len(state.transactions) + 1)
		state.transactions = append(state.transactions, *entry)
		return nil
	})
}

func (m memLedger) ListTransactions(
	_ context.Context,
	userID, storeID uuid.UUID,
	page repository.Pagination,
) ([]*model.LedgerTransaction, error) {
	out := make([]*model.LedgerTransaction, 0)
	err := m.r.with(func(state *memState) error {
		for i := len(state.transactions) - 1; i >= 0; i-- {
			item := state.transactions[i]
			if item.UserID == userID && item.StoreID == storeID {
				out = append(out, &item)
			}
		}
		return nil
	})
	return paginate(out, page), err
}

type memRedemptions struct{ r *memRepos }

func (m memRedemptions) FindByCode(_ context.Context, code string) (*model.Redemption, error) {
	var out *model.Redemption
	err := m.r.with(func(state *memState) error {
		item, ok := state.redemptions[code]
		if !ok {
			return repository.ErrNotFound
		}
		out = &item
		return nil
	})
	return out, err
}

func (m memRedemptions) CodeExists(_ context.Context, code string) (bool, error) {
	var exists bool
	err := m.r.with(func(state *memState) error {
		_, exists = state.redemptions[code]
		return nil
	})
	return exists, err
}

func (m memRedemptions) Create(_ context.Context, item *model.Redemption) error {
	return m.r.with(func(state *memState) error {
		if len(m.r.uow.createRedemptionErrs) > 0 {
			err := m.r.uow.createRedemptionErrs[0]
			m.r.uow.createRedemptionErrs = m.r.uow.createRedemptionErrs[1:]
			if err != nil {
				return err
			}
		}
		if _, taken := state.redemptions[item.Code]; taken {
			return repository.ErrDuplicate
		}
		state.redemptions[item.Code] = *item
		return nil
	})
}

func (m memRedemptions) MarkUsed(
	_ context.Context,
	code string,
	storeID, usedBy uuid.UUID,
	at time.Time,
) (*model.Redemption, error) {
	var out *model.Redemption
	err := m.r.with(func(state *memState) error {
		item, ok := state.redemptions[code]
		if !ok || item.StoreID != storeID || item.Used {
			return repository.ErrConditionFailed
		}
		item.Used = true
		item.UsedAt = &at
		item.UsedBy = &usedBy
		state.redemptions[code] = item
		out = &item
		return nil
	})
	return out, err
}

func (m memRedemptions) List(_ context.Context, filter repository.RedemptionListFilter) ([]*model.Redemption, error) {
	items, err := m.filter(filter)
	return paginate(items, filter.Pagination), err
}

func (m memRedemptions) Count(_ context.Context, filter repository.RedemptionListFilter) (int64, error) {
	items, err := m.filter(filter)
	return int64(len(items)), err
}

func (m memRedemptions) filter(filter repository.RedemptionListFilter) ([]*model.Redemption, error) {
	out := make([]*model.Redemption, 0)
	err := m.r.with(func(state *memState) error {
		for _, item := range state.redemptions {
			if item.UserID != filter.UserID {
				continue
			}
			if filter.StoreID != nil && item.StoreID != *filter.StoreID {
				continue
			}
			if filter.Used != nil && item.Used != *filter.Used {
				continue
			}
			copied := item
			out = append(out, &copied)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

type memAudit struct{ r *memRepos }

func (m memAudit) Create(_ context.Context, log *model.AuditLog) error {
	if log == nil {
		return errors.New("nil audit log")
	}
	return m.r.with(func(state *memState) error {
		state.audit = append(state.audit, *log)
		return nil
	})
}

func paginate[T any](items []T, page repository.Pagination) []T {
	offset := int(page.Offset)
	if offset >= len(items) {
		return items[:0]
	}
	end := len(items)
	if page.Limit > 0 && offset+int(page.Limit) < end {
		end = offset + int(page.Limit)
	}
	return items[offset:end]
}

func spendPolicy(ppcu, rate string) model.RewardPolicy {
	return model.RewardPolicy{
		Type:                  model.PolicyTypeSpend,
		PointsPerCurrencyUnit: decimal.RequireFromString(ppcu),
		ConversionRate:        decimal.RequireFromString(rate),
	}
}

func visitPolicy(points int64, rate string) model.RewardPolicy {
	return model.RewardPolicy{
		Type:           model.PolicyTypeVisit,
		PointsPerVisit: points,
		ConversionRate: decimal.RequireFromString(rate),
	}
}

// sequenceDraw returns codes in order and repeats the last one.
func sequenceDraw(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return code, nil
	}
}
