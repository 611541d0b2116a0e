package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/errors"
)

type entryKey struct {
	account   domain.AccountID
	tx        domain.TransactionID
	direction domain.EntryDirection
}

// MemoryStore keeps accounts, entries and transactions in process memory with
// the same contract as the Postgres store. It backs the `memory` storage driver
// and the service tests.
type MemoryStore struct {
	mu           sync.Mutex
	accounts     map[domain.AccountID]domain.AccountSnapshot
	ibans        map[string]domain.AccountID
	entries      map[entryKey]domain.Entry
	transactions map[domain.TransactionID]domain.Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[domain.AccountID]domain.AccountSnapshot),
		ibans:        make(map[string]domain.AccountID),
		entries:      make(map[entryKey]domain.Entry),
		transactions: make(map[domain.TransactionID]domain.Transaction),
	}
}

func (s *MemoryStore) Account() domain.AccountRepository {
	return (*memoryAccounts)(s)
}

func (s *MemoryStore) Transaction() domain.TransactionRepository {
	return (*memoryTransactions)(s)
}

// Entries returns every recorded entry of an account, oldest first.
func (s *MemoryStore) Entries(accountID domain.AccountID) []domain.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Entry
	for k, e := range s.entries {
		if k.account == accountID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type memoryAccounts MemoryStore

func (r *memoryAccounts) FindByID(_ context.Context, id domain.AccountID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	return domain.RestoreAccount(snap)
}

func (r *memoryAccounts) FindByIBAN(ctx context.Context, iban domain.IBAN) (*domain.Account, error) {
	r.mu.Lock()
	id, ok := r.ibans[iban.String()]
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return r.FindByID(ctx, id)
}

func (r *memoryAccounts) ListByUser(_ context.Context, userID domain.UserID) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Account
	for _, snap := range r.accounts {
		if snap.UserID != userID {
			continue
		}
		acc, err := domain.RestoreAccount(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out, nil
}

func (r *memoryAccounts) Save(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := account.Snapshot()
	stored, exists := r.accounts[snap.ID]
	if exists && stored.Version != snap.Version || !exists && snap.Version != 0 {
		return errors.ErrConcurrentModification.WithDetails(snap.ID.String())
	}
	if owner, taken := r.ibans[snap.IBAN.String()]; taken && owner != snap.ID {
		return errors.ErrDuplicateIBAN.WithDetails(snap.IBAN.String())
	}

	pending := account.PendingEntries()
	for _, e := range pending {
		if _, dup := r.entries[entryKey{e.AccountID, e.TransactionID, e.Direction}]; dup {
			return errors.ErrDuplicateEntry.WithDetails(e.TransactionID.String())
		}
	}

	snap.Version++
	r.accounts[snap.ID] = snap
	r.ibans[snap.IBAN.String()] = snap.ID
	for _, e := range pending {
		r.entries[entryKey{e.AccountID, e.TransactionID, e.Direction}] = e
	}

	account.MarkPersisted(snap.Version)
	return nil
}

func (r *memoryAccounts) HasEntry(_ context.Context, accountID domain.AccountID, txID domain.TransactionID, dir domain.EntryDirection) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[entryKey{accountID, txID, dir}]
	return ok, nil
}

type memoryTransactions MemoryStore

func (r *memoryTransactions) FindByID(_ context.Context, id domain.TransactionID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (r *memoryTransactions) Save(_ context.Context, tx domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stored, ok := r.transactions[tx.ID]; ok && stored.IsTerminal() && stored.Status != tx.Status {
		return errors.ErrInvalidStateTransition.WithDetails(tx.ID.String())
	}
	r.transactions[tx.ID] = tx
	return nil
}

func (r *memoryTransactions) ListByAccount(_ context.Context, accountID domain.AccountID, limit int) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Transaction
	for _, tx := range r.transactions {
		if (tx.FromAccountID != nil && *tx.FromAccountID == accountID) ||
			(tx.ToAccountID != nil && *tx.ToAccountID == accountID) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

func (r *memoryTransactions) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Transaction
	for _, tx := range r.transactions {
		if tx.Status == domain.StatusPending && tx.Type != domain.TransactionTransferIBAN && tx.CreatedAt.Before(cutoff) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

func (r *memoryTransactions) HasPending(_ context.Context, accountID domain.AccountID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tx := range r.transactions {
		if tx.Status != domain.StatusPending {
			continue
		}
		if (tx.FromAccountID != nil && *tx.FromAccountID == accountID) ||
			(tx.ToAccountID != nil && *tx.ToAccountID == accountID) {
			return true, nil
		}
	}
	return false, nil
}

func truncate(txs []domain.Transaction, limit int) []domain.Transaction {
	if limit > 0 && len(txs) > limit {
		return txs[:limit]
	}
	return txs
}
