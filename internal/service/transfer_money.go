package service

import (
	"context"
	"time"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/errors"
	"ledger-transfers/internal/events"
	"ledger-transfers/internal/metrics"
)

type TransferInput struct {
	SourceAccountID      string
	DestinationAccountID string
	Amount               string
	Currency             string
	Description          string
}

// TransferResult is the outcome of a money movement. Failures carry the error
// code and message; they are never a silent no-op.
type TransferResult struct {
	Success       bool             `json:"success"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Status        string           `json:"status,omitempty"`
	ErrorCode     errors.ErrorCode `json:"error_code,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
}

func succeeded(tx domain.Transaction) TransferResult {
	return TransferResult{Success: true, TransactionID: tx.ID.String(), Status: string(tx.Status)}
}

func failed(err *errors.AppError) TransferResult {
	return TransferResult{Success: false, ErrorCode: err.Code, ErrorMessage: err.Message}
}

// TransferMoney moves funds between two internal accounts.
type TransferMoney struct {
	deps Dependencies
}

func NewTransferMoney(deps Dependencies) *TransferMoney {
	return &TransferMoney{deps: deps}
}

// Execute validates, mutates both accounts and persists the transaction, the
// source and the destination in that order before completing the transaction.
// A failure after the PENDING record is written leaves it for the reconciler.
func (s *TransferMoney) Execute(ctx context.Context, in TransferInput) (TransferResult, error) {
	log := s.deps.Logger
	log.Info("Processing transfer",
		"source_account_id", in.SourceAccountID,
		"destination_account_id", in.DestinationAccountID,
		"amount", in.Amount,
		"currency", in.Currency)

	start := time.Now()
	tx, err := s.execute(ctx, in)
	metrics.ObserveOperation("transfer", start, err)
	if err != nil {
		appErr := errors.As(err)
		if appErr.Kind() == errors.KindInfrastructure {
			log.Error("Transfer failed", "error", appErr)
		} else {
			log.Warn("Transfer refused", "code", appErr.Code, "details", appErr.Details)
		}
		return failed(appErr), appErr
	}

	log.Info("Transfer completed", "transaction_id", tx.ID, "amount", tx.Amount)
	return succeeded(tx), nil
}

func (s *TransferMoney) execute(ctx context.Context, in TransferInput) (domain.Transaction, error) {
	sourceID, err := domain.ParseAccountID(in.SourceAccountID)
	if err != nil {
		return domain.Transaction{}, err
	}
	destID, err := domain.ParseAccountID(in.DestinationAccountID)
	if err != nil {
		return domain.Transaction{}, err
	}

	amount, err := s.deps.parseAmount(in.Amount, in.Currency)
	if err != nil {
		return domain.Transaction{}, err
	}

	unlock, err := s.deps.lockAccounts(ctx, sourceID, destID)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer unlock()

	return s.transferLocked(ctx, sourceID, destID, amount, in.Description)
}

// transferLocked expects both account locks to be held by the caller.
func (s *TransferMoney) transferLocked(ctx context.Context, sourceID, destID domain.AccountID, amount domain.Money, description string) (domain.Transaction, error) {
	source, err := s.deps.loadActiveAccount(ctx, sourceID)
	if err != nil {
		return domain.Transaction{}, err
	}
	dest, err := s.deps.loadActiveAccount(ctx, destID)
	if err != nil {
		return domain.Transaction{}, err
	}

	if sourceID == destID {
		return domain.Transaction{}, errors.ErrSameAccountTransfer
	}

	enough, err := source.HasEnoughBalance(amount)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !enough {
		return domain.Transaction{}, errors.ErrInsufficientFunds.WithDetails(
			"balance " + source.Balance().String() + " is below " + amount.String())
	}
	now := s.deps.now()
	tx, err := domain.NewTransaction(domain.NewTransactionParams{
		From:        &sourceID,
		To:          &destID,
		Amount:      amount,
		Type:        domain.TransactionTransfer,
		Description: description,
	}, now)
	if err != nil {
		return domain.Transaction{}, err
	}

	if err := source.Debit(tx.ID, amount, now); err != nil {
		return domain.Transaction{}, err
	}
	if err := dest.Credit(tx.ID, amount, now); err != nil {
		return domain.Transaction{}, err
	}

	if err := s.deps.Transactions.Save(ctx, tx); err != nil {
		return domain.Transaction{}, persistenceError(err, "transfer %s: saving pending transaction", tx.ID)
	}
	if err := s.deps.Accounts.Save(ctx, source); err != nil {
		return domain.Transaction{}, persistenceError(err, "transfer %s: saving source account", tx.ID)
	}
	if err := s.deps.Accounts.Save(ctx, dest); err != nil {
		return domain.Transaction{}, persistenceError(err, "transfer %s: saving destination account", tx.ID)
	}

	completed, err := tx.Complete(s.deps.now())
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := s.deps.Transactions.Save(ctx, completed); err != nil {
		return domain.Transaction{}, persistenceError(err, "transfer %s: completing transaction", tx.ID)
	}

	s.deps.notify(events.TransferCompleted, completed)
	return completed, nil
}
