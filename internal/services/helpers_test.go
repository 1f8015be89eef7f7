package services

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/chain"
	"github.com/0xArchitect/ludo-backend/internal/events"
	"github.com/0xArchitect/ludo-backend/internal/idempotency"
	"github.com/0xArchitect/ludo-backend/internal/models"
	"github.com/0xArchitect/ludo-backend/internal/repository/memstore"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// well-known development key, never funded
const testSignerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const (
	testPool    = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
	testAddress = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
)

var errRPCDown = errors.New("rpc down")

type fakeChain struct {
	mu          sync.Mutex
	head        uint64
	headErr     error
	fetchErr    error
	findErr     error
	events      []chain.Event
	withdrawals map[uint64]*chain.WithdrawalEvent
	ranges      [][2]uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{withdrawals: make(map[uint64]*chain.WithdrawalEvent)}
}

func (f *fakeChain) Head(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, f.headErr
}

func (f *fakeChain) Events(_ context.Context, kind chain.EventKind, from, to uint64) ([]chain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, [2]uint64{from, to})
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []chain.Event
	for _, e := range f.events {
		b := e.Meta().BlockNumber
		if e.Kind() == kind && b >= from && b < to {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeChain) FindWithdrawal(_ context.Context, nonce uint64, user common.Address) (*chain.WithdrawalEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	e, ok := f.withdrawals[nonce]
	if !ok || e.User != user {
		return nil, nil
	}
	return e, nil
}

func (f *fakeChain) addEvent(e chain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	if w, ok := e.(chain.WithdrawalEvent); ok {
		f.withdrawals[w.Nonce.Uint64()] = &w
	}
}

type fakeOTP struct{ code string }

func (f fakeOTP) Verify(_, code string) bool { return code == f.code }

type failingSigner struct{}

func (failingSigner) SignWithdrawal(context.Context, chain.WithdrawalPayload) (string, error) {
	return "", errors.New("hsm offline")
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.LedgerEvent
}

func (r *recordingNotifier) Notify(_ context.Context, e events.LedgerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store      *memstore.Store
	cache      *idempotency.MemoryCache
	chain      *fakeChain
	signer     *chain.TypedDataSigner
	notifier   *recordingNotifier
	ledger     *BalanceLedger
	settlement *WithdrawalSettlement
	authorizer *WithdrawalAuthorizer
	reconciler *EventReconciler
	reaper     *StalePendingReaper
	accounts   *AccountService

	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cache, err := idempotency.NewMemoryCache(ctx, idempotency.DefaultTTL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	signer, err := chain.NewTypedDataSigner(testSignerKey, chain.Domain{
		Name:              "LudoBalancePool",
		Version:           "1",
		ChainID:           11155111,
		VerifyingContract: common.HexToAddress(testPool),
	})
	require.NoError(t, err)

	f := &fixture{
		store:    memstore.New(),
		cache:    cache,
		chain:    newFakeChain(),
		signer:   signer,
		notifier: &recordingNotifier{},
		now:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store.SetClock(clock)

	f.ledger = NewBalanceLedger(f.store)
	f.settlement = NewWithdrawalSettlement(f.ledger, f.store, cache, f.notifier, logger)
	f.settlement.now = clock
	f.authorizer = NewWithdrawalAuthorizer(f.ledger, cache, signer, fakeOTP{code: "123456"}, f.notifier, WithdrawalAuthorizerConfig{}, logger)
	f.authorizer.now = clock
	f.reconciler = NewEventReconciler(f.chain, f.ledger, f.store, f.settlement, f.notifier, EventReconcilerConfig{}, logger)
	f.reconciler.now = clock
	f.reaper = NewStalePendingReaper(f.chain, f.store, f.settlement, StalePendingReaperConfig{}, logger)
	f.reaper.now = clock
	f.accounts = NewAccountService(f.store)
	return f
}

func (f *fixture) seed(id uint64, balance string) {
	f.store.SeedAccount(models.Account{
		ID:            id,
		Name:          "player",
		Balance:       decimal.RequireFromString(balance),
		WalletAddress: testAddress,
	})
}

func (f *fixture) balance(t *testing.T, id uint64) decimal.Decimal {
	t.Helper()
	account, err := f.store.Accounts().GetByID(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

func (f *fixture) pendingCount(t *testing.T) int64 {
	t.Helper()
	n, err := f.store.PendingWithdrawals().Count(context.Background())
	require.NoError(t, err)
	return n
}

func depositEvent(user int64, amount string, tx string, block uint64) chain.DepositEvent {
	return chain.DepositEvent{
		LogMeta: chain.LogMeta{TxHash: tx, BlockNumber: block, Contract: testPool},
		UserID:  big.NewInt(user),
		Amount:  chain.ToWei(decimal.RequireFromString(amount)),
	}
}

func withdrawalEvent(nonce uint64, user string, amount string, tx string, block uint64) chain.WithdrawalEvent {
	return chain.WithdrawalEvent{
		LogMeta: chain.LogMeta{TxHash: tx, BlockNumber: block, Contract: testPool},
		Nonce:   new(big.Int).SetUint64(nonce),
		User:    common.HexToAddress(user),
		Amount:  chain.ToWei(decimal.RequireFromString(amount)),
	}
}
