package service

import (
	"context"
	"strings"
	"time"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/errors"
	"ledger-transfers/internal/events"
	"ledger-transfers/internal/metrics"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// TransactionService reads transaction records and carries the advisor
// decision on external IBAN transfers.
type TransactionService struct {
	deps Dependencies
}

func NewTransactionService(deps Dependencies) *TransactionService {
	return &TransactionService{deps: deps}
}

func (s *TransactionService) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	txID, err := domain.ParseTransactionID(id)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, txID)
}

func (s *TransactionService) find(ctx context.Context, id domain.TransactionID) (*domain.Transaction, error) {
	tx, err := s.deps.Transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, errors.ErrTransactionNotFound.WithDetails(id.String())
	}
	return tx, nil
}

// History lists the newest transactions touching an account.
func (s *TransactionService) History(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	id, err := domain.ParseAccountID(accountID)
	if err != nil {
		return nil, err
	}
	if _, err := s.deps.loadAccount(ctx, id); err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	return s.deps.Transactions.ListByAccount(ctx, id, limit)
}

// Approve releases a PENDING external transfer. The source was debited when
// the transfer was requested, so only the record changes.
func (s *TransactionService) Approve(ctx context.Context, id string) (_ *domain.Transaction, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("approve", start, err) }(time.Now())

	tx, unlock, err := s.lockReview(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	approved, err := tx.Approve(s.deps.now())
	if err != nil {
		return nil, err
	}
	if err := s.deps.Transactions.Save(ctx, approved); err != nil {
		return nil, persistenceError(err, "approve %s", tx.ID)
	}

	s.deps.Logger.Info("IBAN transfer approved", "transaction_id", tx.ID, "amount", approved.Amount)
	s.deps.notify(events.TransferApproved, approved)
	return &approved, nil
}

// Reject refunds the source of a PENDING external transfer and marks it
// REJECTED. The refund is a credit entry under the same transaction id, so a
// retried rejection never refunds twice.
func (s *TransactionService) Reject(ctx context.Context, id, reason string) (_ *domain.Transaction, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("reject", start, err) }(time.Now())

	tx, unlock, err := s.lockReview(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.deps.now()
	rejected, err := tx.Reject(now)
	if err != nil {
		return nil, err
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		rejected.Description = strings.TrimSpace(rejected.Description + " (rejected: " + reason + ")")
	}

	if err := s.refund(ctx, *tx, now); err != nil {
		return nil, err
	}
	if err := s.deps.Transactions.Save(ctx, rejected); err != nil {
		return nil, persistenceError(err, "reject %s: saving transaction", tx.ID)
	}

	s.deps.Logger.Info("IBAN transfer rejected", "transaction_id", tx.ID, "source_account_id", tx.FromAccountID)
	s.deps.notify(events.TransferRejected, rejected)
	return &rejected, nil
}

// lockReview locks the source account of an external transfer and re-reads
// the record under that lock, so approve and reject cannot interleave.
func (s *TransactionService) lockReview(ctx context.Context, id string) (*domain.Transaction, func(), error) {
	txID, err := domain.ParseTransactionID(id)
	if err != nil {
		return nil, nil, err
	}
	tx, err := s.find(ctx, txID)
	if err != nil {
		return nil, nil, err
	}
	if tx.Type != domain.TransactionTransferIBAN {
		return nil, nil, errors.NewAppErrorf(errors.InvalidOperation,
			"only %s transactions are reviewed manually", domain.TransactionTransferIBAN)
	}

	unlock, err := s.deps.lockAccounts(ctx, *tx.FromAccountID)
	if err != nil {
		return nil, nil, err
	}
	tx, err = s.find(ctx, txID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return tx, unlock, nil
}

func (s *TransactionService) refund(ctx context.Context, tx domain.Transaction, now time.Time) error {
	sourceID := *tx.FromAccountID

	refunded, err := s.deps.Accounts.HasEntry(ctx, sourceID, tx.ID, domain.EntryCredit)
	if err != nil {
		return err
	}
	debited, err := s.deps.Accounts.HasEntry(ctx, sourceID, tx.ID, domain.EntryDebit)
	if err != nil {
		return err
	}
	if refunded || !debited {
		return nil
	}

	source, err := s.deps.loadAccount(ctx, sourceID)
	if err != nil {
		return err
	}
	if err := source.Credit(tx.ID, tx.Amount, now); err != nil {
		return err
	}
	if err := s.deps.Accounts.Save(ctx, source); err != nil {
		return persistenceError(err, "reject %s: refunding source account", tx.ID)
	}
	return nil
}
