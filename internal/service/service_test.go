package service

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/errors"
	"ledger-transfers/internal/events"
	"ledger-transfers/internal/lock"
	"ledger-transfers/internal/repository"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (n *recordingNotifier) Notify(e events.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) Types() []events.Type {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]events.Type, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}

var errDiskFull = stderrors.New("disk full")

// flakyAccounts fails Save for the accounts selected by failOn.
type flakyAccounts struct {
	domain.AccountRepository
	failOn func(*domain.Account) bool
}

func (f *flakyAccounts) Save(ctx context.Context, a *domain.Account) error {
	if f.failOn != nil && f.failOn(a) {
		return errors.Wrap(errors.InternalError, "write failed", errDiskFull)
	}
	return f.AccountRepository.Save(ctx, a)
}

// flakyTransactions fails Save for records in the given status.
type flakyTransactions struct {
	domain.TransactionRepository
	failStatus domain.TransactionStatus
}

func (f *flakyTransactions) Save(ctx context.Context, tx domain.Transaction) error {
	if f.failStatus != "" && tx.Status == f.failStatus {
		return errors.Wrap(errors.InternalError, "write failed", errDiskFull)
	}
	return f.TransactionRepository.Save(ctx, tx)
}

type fixture struct {
	store    *repository.MemoryStore
	accounts *flakyAccounts
	txs      *flakyTransactions
	clock    *testClock
	notifier *recordingNotifier
	deps     Dependencies
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	f := &fixture{
		store:    store,
		accounts: &flakyAccounts{AccountRepository: store.Account()},
		txs:      &flakyTransactions{TransactionRepository: store.Transaction()},
		clock:    &testClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
		notifier: &recordingNotifier{},
	}
	f.deps = Dependencies{
		Accounts:        f.accounts,
		Transactions:    f.txs,
		Locker:          lock.NewMemoryLocker(),
		Events:          f.notifier,
		DefaultCurrency: domain.EUR,
		Clock:           f.clock.Now,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return f
}

// seedAccount opens an active EUR checking account holding balance.
func (f *fixture) seedAccount(t *testing.T, balance string) *domain.Account {
	t.Helper()
	iban, err := domain.GenerateIBAN()
	require.NoError(t, err)
	acc, err := domain.OpenAccount(domain.OpenAccountParams{
		UserID: domain.UserID{UUID: uuid.New()},
		Name:   "Current",
		Type:   "checking",
	}, iban, f.clock.Now())
	require.NoError(t, err)

	amount := domain.MustMoney(balance, "EUR")
	if amount.IsPositive() {
		require.NoError(t, acc.Credit(domain.NewTransactionID(), amount, f.clock.Now()))
	}
	require.NoError(t, f.store.Account().Save(context.Background(), acc))
	return acc
}

func (f *fixture) money(t *testing.T, id domain.AccountID) domain.Money {
	t.Helper()
	acc, err := f.store.Account().FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, acc)
	return acc.Balance()
}

func (f *fixture) balance(t *testing.T, id domain.AccountID) string {
	t.Helper()
	return f.money(t, id).String()
}

func (f *fixture) transaction(t *testing.T, id string) domain.Transaction {
	t.Helper()
	txID, err := domain.ParseTransactionID(id)
	require.NoError(t, err)
	tx, err := f.store.Transaction().FindByID(context.Background(), txID)
	require.NoError(t, err)
	require.NotNil(t, tx)
	return *tx
}

func (f *fixture) history(t *testing.T, id domain.AccountID) []domain.Transaction {
	t.Helper()
	txs, err := f.store.Transaction().ListByAccount(context.Background(), id, 100)
	require.NoError(t, err)
	return txs
}

func hasCode(err error, code errors.ErrorCode) bool {
	var appErr *errors.AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}
