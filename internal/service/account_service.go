package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/shopspring/decimal"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/errors"
	"ledger-transfers/internal/events"
	"ledger-transfers/internal/metrics"
)

// maxIBANAttempts bounds regeneration when a fresh IBAN collides.
const maxIBANAttempts = 5

type AccountService struct {
	deps Dependencies
}

func NewAccountService(deps Dependencies) *AccountService {
	return &AccountService{deps: deps}
}

type OpenAccountRequest struct {
	UserID       string
	Name         string
	Type         string
	Currency     string
	InterestRate *decimal.Decimal
}

func (s *AccountService) OpenAccount(ctx context.Context, req OpenAccountRequest) (*domain.Account, error) {
	s.deps.Logger.Info("Opening account", "user_id", req.UserID, "account_type", req.Type)

	userID, err := domain.ParseUserID(req.UserID)
	if err != nil {
		return nil, err
	}
	raw := req.Currency
	if raw == "" {
		raw = s.deps.currency()
	}
	currency, err := domain.ParseCurrency(raw)
	if err != nil {
		return nil, err
	}

	params := domain.OpenAccountParams{
		UserID:       userID,
		Name:         req.Name,
		Type:         req.Type,
		Currency:     currency,
		InterestRate: req.InterestRate,
	}

	for attempt := 1; ; attempt++ {
		iban, err := domain.GenerateIBAN()
		if err != nil {
			return nil, errors.Wrap(errors.InternalError, "failed to generate iban", err)
		}
		account, err := domain.OpenAccount(params, iban, s.deps.now())
		if err != nil {
			return nil, err
		}

		err = s.deps.Accounts.Save(ctx, account)
		if err == nil {
			s.deps.Logger.Info("Account opened", "account_id", account.ID(), "iban", account.IBAN())
			return account, nil
		}
		if !stderrors.Is(err, errors.ErrDuplicateIBAN) || attempt >= maxIBANAttempts {
			return nil, err
		}
		s.deps.Logger.Warn("IBAN collision, regenerating", "iban", iban, "attempt", attempt)
	}
}

func (s *AccountService) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	accountID, err := domain.ParseAccountID(id)
	if err != nil {
		return nil, err
	}
	return s.deps.loadAccount(ctx, accountID)
}

func (s *AccountService) ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error) {
	uid, err := domain.ParseUserID(userID)
	if err != nil {
		return nil, err
	}
	return s.deps.Accounts.ListByUser(ctx, uid)
}

func (s *AccountService) RenameAccount(ctx context.Context, id, name string) (*domain.Account, error) {
	return s.mutate(ctx, id, func(a *domain.Account) error {
		return a.UpdateName(name, s.deps.now())
	})
}

// CloseAccount deactivates an account whose balance is exactly zero and that no
// PENDING transaction references.
func (s *AccountService) CloseAccount(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.mutate(ctx, id, func(a *domain.Account) error {
		pending, err := s.deps.Transactions.HasPending(ctx, a.ID())
		if err != nil {
			return persistenceError(err, "checking pending transactions of %s", a.ID())
		}
		if pending {
			return errors.ErrInvalidOperation.WithDetails("account has pending transactions")
		}
		return a.Close(s.deps.now())
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Account closed", "account_id", account.ID())
	return account, nil
}

func (s *AccountService) mutate(ctx context.Context, id string, fn func(*domain.Account) error) (*domain.Account, error) {
	accountID, err := domain.ParseAccountID(id)
	if err != nil {
		return nil, err
	}
	unlock, err := s.deps.lockAccounts(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	account, err := s.deps.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := fn(account); err != nil {
		return nil, err
	}
	if err := s.deps.Accounts.Save(ctx, account); err != nil {
		return nil, persistenceError(err, "saving account %s", accountID)
	}
	return account, nil
}

type MovementRequest struct {
	AccountID   string
	Amount      string
	Currency    string
	Description string
}

// Deposit credits an account from outside the ledger.
func (s *AccountService) Deposit(ctx context.Context, req MovementRequest) (*domain.Transaction, error) {
	start := time.Now()
	tx, err := s.move(ctx, req, domain.TransactionDeposit)
	metrics.ObserveOperation("deposit", start, err)
	return tx, err
}

// Withdraw debits an account to outside the ledger.
func (s *AccountService) Withdraw(ctx context.Context, req MovementRequest) (*domain.Transaction, error) {
	start := time.Now()
	tx, err := s.move(ctx, req, domain.TransactionWithdrawal)
	metrics.ObserveOperation("withdrawal", start, err)
	return tx, err
}

// move follows the transfer persistence order for a single account: PENDING
// record, account, then the COMPLETED record.
func (s *AccountService) move(ctx context.Context, req MovementRequest, kind domain.TransactionType) (*domain.Transaction, error) {
	s.deps.Logger.Info("Processing movement", "account_id", req.AccountID, "type", kind, "amount", req.Amount)

	accountID, err := domain.ParseAccountID(req.AccountID)
	if err != nil {
		return nil, err
	}
	amount, err := s.deps.parseAmount(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	unlock, err := s.deps.lockAccounts(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	account, err := s.deps.loadActiveAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	params := domain.NewTransactionParams{Amount: amount, Type: kind, Description: req.Description}
	if kind == domain.TransactionDeposit {
		params.To = &accountID
	} else {
		params.From = &accountID
	}

	now := s.deps.now()
	tx, err := domain.NewTransaction(params, now)
	if err != nil {
		return nil, err
	}
	if kind == domain.TransactionDeposit {
		err = account.Credit(tx.ID, amount, now)
	} else {
		err = account.Debit(tx.ID, amount, now)
	}
	if err != nil {
		return nil, err
	}

	if err := s.deps.Transactions.Save(ctx, tx); err != nil {
		return nil, persistenceError(err, "%s %s: saving pending transaction", kind, tx.ID)
	}
	if err := s.deps.Accounts.Save(ctx, account); err != nil {
		return nil, persistenceError(err, "%s %s: saving account", kind, tx.ID)
	}
	completed, err := tx.Complete(s.deps.now())
	if err != nil {
		return nil, err
	}
	if err := s.deps.Transactions.Save(ctx, completed); err != nil {
		return nil, persistenceError(err, "%s %s: completing transaction", kind, tx.ID)
	}

	if kind == domain.TransactionDeposit {
		s.deps.notify(events.DepositCompleted, completed)
	} else {
		s.deps.notify(events.WithdrawalCompleted, completed)
	}
	s.deps.Logger.Info("Movement completed", "transaction_id", completed.ID, "balance", account.Balance())
	return &completed, nil
}
