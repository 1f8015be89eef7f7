// Package memstore is an in-memory repository.Store.
// Transactions hold a store-wide lock and restore a snapshot when the callback fails,
// which gives the same all-or-nothing and per-account serialization guarantees as the
// Postgres store, only coarser.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/models"
	"github.com/0xArchitect/ludo-backend/internal/repository"
	"github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/shopspring/decimal"
)

type state struct {
	accounts    map[uint64]models.Account
	pending     map[uint64]models.PendingWithdrawal
	journal     []models.JournalEntry
	checkpoints map[models.CheckpointKind]models.Checkpoint
	nextPending uint64
	nextJournal uint64
}

func newState() *state {
	return &state{
		accounts:    make(map[uint64]models.Account),
		pending:     make(map[uint64]models.PendingWithdrawal),
		checkpoints: make(map[models.CheckpointKind]models.Checkpoint),
	}
}

func (s *state) clone() state {
	c := state{
		accounts:    make(map[uint64]models.Account, len(s.accounts)),
		pending:     make(map[uint64]models.PendingWithdrawal, len(s.pending)),
		journal:     append([]models.JournalEntry(nil), s.journal...),
		checkpoints: make(map[models.CheckpointKind]models.Checkpoint, len(s.checkpoints)),
		nextPending: s.nextPending,
		nextJournal: s.nextJournal,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.pending {
		c.pending[k] = v
	}
	for k, v := range s.checkpoints {
		c.checkpoints[k] = v
	}
	return c
}

// Store is the root store; every call outside a transaction takes the store lock
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// New creates an empty Store
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// SetClock overrides the clock used for created_at / updated_at stamps
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SeedAccount inserts or replaces an account
func (s *Store) SeedAccount(account models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.accounts[account.ID] = account
}

func (s *Store) lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

func noLock() func() {
	return func() {}
}

func (s *Store) view(guard func() func()) *view {
	return &view{st: s.st, guard: guard, now: s.now}
}

func (s *Store) Accounts() repository.AccountRepository {
	return &accountRepo{s.view(s.lock)}
}

func (s *Store) PendingWithdrawals() repository.PendingWithdrawalRepository {
	return &pendingRepo{s.view(s.lock)}
}

func (s *Store) Journal() repository.JournalRepository {
	return &journalRepo{s.view(s.lock)}
}

func (s *Store) Checkpoints() repository.CheckpointRepository {
	return &checkpointRepo{s.view(s.lock)}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	err := fn(&txStore{v: s.view(noLock)})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		*s.st = snapshot
	}
	return err
}

type txStore struct {
	v *view
}

func (t *txStore) Accounts() repository.AccountRepository { return &accountRepo{t.v} }

func (t *txStore) PendingWithdrawals() repository.PendingWithdrawalRepository {
	return &pendingRepo{t.v}
}

func (t *txStore) Journal() repository.JournalRepository { return &journalRepo{t.v} }

func (t *txStore) Checkpoints() repository.CheckpointRepository { return &checkpointRepo{t.v} }

func (t *txStore) Transaction(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(t)
}

type view struct {
	st    *state
	guard func() func()
	now   func() time.Time
}

type accountRepo struct{ *view }

func (r *accountRepo) GetByID(_ context.Context, id uint64) (*models.Account, error) {
	defer r.guard()()
	account, ok := r.st.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", types.ErrNotFound, id)
	}
	return &account, nil
}

func (r *accountRepo) LockByID(ctx context.Context, id uint64) (*models.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *accountRepo) UpdateBalance(_ context.Context, id uint64, balance decimal.Decimal) error {
	defer r.guard()()
	account, ok := r.st.accounts[id]
	if !ok {
		return fmt.Errorf("%w: user %d", types.ErrNotFound, id)
	}
	if balance.IsNegative() {
		return fmt.Errorf("check constraint chk_users_balance_non_negative violated for user %d", id)
	}
	account.Balance = balance
	account.UpdatedAt = r.now()
	r.st.accounts[id] = account
	return nil
}

type pendingRepo struct{ *view }

func (r *pendingRepo) Create(_ context.Context, pending *models.PendingWithdrawal) error {
	defer r.guard()()
	for _, p := range r.st.pending {
		if p.Address == pending.Address && p.Nonce == pending.Nonce {
			return fmt.Errorf("%w: %s/%d", repository.ErrPendingExists, pending.Address, pending.Nonce)
		}
	}
	r.st.nextPending++
	pending.ID = r.st.nextPending
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = r.now()
	}
	r.st.pending[pending.ID] = *pending
	return nil
}

func (r *pendingRepo) GetByID(_ context.Context, id uint64) (*models.PendingWithdrawal, error) {
	defer r.guard()()
	p, ok := r.st.pending[id]
	if !ok {
		return nil, fmt.Errorf("%w: pending withdrawal", types.ErrNotFound)
	}
	return &p, nil
}

func (r *pendingRepo) FindByAddressNonce(_ context.Context, address string, nonce uint64) (*models.PendingWithdrawal, error) {
	defer r.guard()()
	for _, p := range r.st.pending {
		if p.Address == address && p.Nonce == nonce {
			found := p
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: pending withdrawal", types.ErrNotFound)
}

func (r *pendingRepo) Delete(_ context.Context, id uint64) (bool, error) {
	defer r.guard()()
	if _, ok := r.st.pending[id]; !ok {
		return false, nil
	}
	delete(r.st.pending, id)
	return true, nil
}

func (r *pendingRepo) ListCreatedBefore(_ context.Context, cutoff time.Time, afterID uint64, limit int) ([]*models.PendingWithdrawal, error) {
	defer r.guard()()
	var out []*models.PendingWithdrawal
	for _, p := range r.st.pending {
		if p.ID > afterID && p.CreatedAt.Before(cutoff) {
			found := p
			out = append(out, &found)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *pendingRepo) SumByUser(_ context.Context, userID uint64) (decimal.Decimal, error) {
	defer r.guard()()
	sum := decimal.Zero
	for _, p := range r.st.pending {
		if p.UserID == userID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (r *pendingRepo) Count(_ context.Context) (int64, error) {
	defer r.guard()()
	return int64(len(r.st.pending)), nil
}

type journalRepo struct{ *view }

func (r *journalRepo) Create(_ context.Context, entry *models.JournalEntry) error {
	defer r.guard()()
	for _, e := range r.st.journal {
		if e.TxHash == entry.TxHash {
			return fmt.Errorf("%w: tx %s", types.ErrDuplicateEvent, entry.TxHash)
		}
	}
	r.st.nextJournal++
	entry.ID = r.st.nextJournal
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	r.st.journal = append(r.st.journal, *entry)
	return nil
}

func (r *journalRepo) ExistsByTxHash(_ context.Context, txHash string) (bool, error) {
	defer r.guard()()
	for _, e := range r.st.journal {
		if e.TxHash == txHash {
			return true, nil
		}
	}
	return false, nil
}

func (r *journalRepo) ListByUser(_ context.Context, userID uint64, offset, limit int) ([]*models.JournalEntry, error) {
	defer r.guard()()
	var out []*models.JournalEntry
	for _, e := range r.st.journal {
		if e.UserID == userID {
			found := e
			out = append(out, &found)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type checkpointRepo struct{ *view }

func (r *checkpointRepo) Get(_ context.Context, kind models.CheckpointKind, initial uint64) (uint64, error) {
	defer r.guard()()
	cp, ok := r.st.checkpoints[kind]
	if !ok {
		cp = models.Checkpoint{Kind: kind, BlockNumber: initial, UpdatedAt: r.now()}
		r.st.checkpoints[kind] = cp
	}
	return cp.BlockNumber, nil
}

func (r *checkpointRepo) Advance(_ context.Context, kind models.CheckpointKind, block uint64) error {
	defer r.guard()()
	cp, ok := r.st.checkpoints[kind]
	if !ok || cp.BlockNumber >= block {
		return nil
	}
	cp.BlockNumber = block
	cp.UpdatedAt = r.now()
	r.st.checkpoints[kind] = cp
	return nil
}
