package service

import (
	"context"
	"time"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/errors"
	"ledger-transfers/internal/events"
	"ledger-transfers/internal/metrics"
)

type IBANTransferInput struct {
	SourceAccountID string
	IBAN            string
	Amount          string
	Currency        string
	Description     string
}

// TransferToIBAN sends money to an IBAN. Internal IBANs settle immediately as
// a regular transfer; external ones debit the source and wait PENDING for an
// advisor decision.
type TransferToIBAN struct {
	deps     Dependencies
	internal *TransferMoney
}

func NewTransferToIBAN(deps Dependencies, internal *TransferMoney) *TransferToIBAN {
	return &TransferToIBAN{deps: deps, internal: internal}
}

func (s *TransferToIBAN) Execute(ctx context.Context, in IBANTransferInput) (TransferResult, error) {
	log := s.deps.Logger
	log.Info("Processing IBAN transfer",
		"source_account_id", in.SourceAccountID,
		"iban", in.IBAN,
		"amount", in.Amount)

	start := time.Now()
	tx, err := s.execute(ctx, in)
	metrics.ObserveOperation("iban_transfer", start, err)
	if err != nil {
		appErr := errors.As(err)
		log.Warn("IBAN transfer failed", "code", appErr.Code, "error", appErr)
		return failed(appErr), appErr
	}

	log.Info("IBAN transfer recorded", "transaction_id", tx.ID, "status", tx.Status)
	return succeeded(tx), nil
}

func (s *TransferToIBAN) execute(ctx context.Context, in IBANTransferInput) (domain.Transaction, error) {
	sourceID, err := domain.ParseAccountID(in.SourceAccountID)
	if err != nil {
		return domain.Transaction{}, err
	}
	iban, err := domain.ParseIBAN(in.IBAN)
	if err != nil {
		return domain.Transaction{}, err
	}
	amount, err := s.deps.parseAmount(in.Amount, in.Currency)
	if err != nil {
		return domain.Transaction{}, err
	}

	target, err := s.deps.Accounts.FindByIBAN(ctx, iban)
	if err != nil {
		return domain.Transaction{}, err
	}
	if target != nil {
		s.deps.Logger.Info("IBAN is internal, settling as transfer", "destination_account_id", target.ID())
		unlock, err := s.deps.lockAccounts(ctx, sourceID, target.ID())
		if err != nil {
			return domain.Transaction{}, err
		}
		defer unlock()
		return s.internal.transferLocked(ctx, sourceID, target.ID(), amount, in.Description)
	}

	unlock, err := s.deps.lockAccounts(ctx, sourceID)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer unlock()

	source, err := s.deps.loadActiveAccount(ctx, sourceID)
	if err != nil {
		return domain.Transaction{}, err
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
		From:             &sourceID,
		CounterpartyIBAN: &iban,
		Amount:           amount,
		Type:             domain.TransactionTransferIBAN,
		Description:      in.Description,
	}, now)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := source.Debit(tx.ID, amount, now); err != nil {
		return domain.Transaction{}, err
	}

	if err := s.deps.Transactions.Save(ctx, tx); err != nil {
		return domain.Transaction{}, persistenceError(err, "iban transfer %s: saving pending transaction", tx.ID)
	}
	if err := s.deps.Accounts.Save(ctx, source); err != nil {
		return domain.Transaction{}, persistenceError(err, "iban transfer %s: saving source account", tx.ID)
	}

	s.deps.notify(events.TransferRequested, tx)
	return tx, nil
}
