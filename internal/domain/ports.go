package domain

import (
	"context"
	"time"
)

// AccountRepository persists Account aggregates.
//
// FindByID returns (nil, nil) when the account does not exist. Save is an upsert
// by id; it writes the account's pending entries atomically with the row and
// fails with a concurrent_modification error when the stored version moved.
type AccountRepository interface {
	FindByID(ctx context.Context, id AccountID) (*Account, error)
	FindByIBAN(ctx context.Context, iban IBAN) (*Account, error)
	ListByUser(ctx context.Context, userID UserID) ([]*Account, error)
	Save(ctx context.Context, account *Account) error
	HasEntry(ctx context.Context, accountID AccountID, txID TransactionID, dir EntryDirection) (bool, error)
}

// TransactionRepository persists transaction records. Save is an upsert by id, so
// the same record can be written PENDING and then COMPLETED.
type TransactionRepository interface {
	FindByID(ctx context.Context, id TransactionID) (*Transaction, error)
	Save(ctx context.Context, tx Transaction) error
	ListByAccount(ctx context.Context, accountID AccountID, limit int) ([]Transaction, error)
	// ListPendingBefore returns the oldest PENDING records created before cutoff.
	// TRANSFER_IBAN records wait on an advisor and are not listed.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Transaction, error)
	HasPending(ctx context.Context, accountID AccountID) (bool, error)
}
