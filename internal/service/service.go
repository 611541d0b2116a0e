package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/errors"
	"ledger-transfers/internal/events"
	"ledger-transfers/internal/lock"
)

// Dependencies are the collaborators shared by every use case.
type Dependencies struct {
	Accounts        domain.AccountRepository
	Transactions    domain.TransactionRepository
	Locker          lock.Locker
	Events          events.Notifier
	DefaultCurrency domain.Currency
	Clock           func() time.Time
	Logger          *slog.Logger
}

func (d Dependencies) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now().UTC()
}

func (d Dependencies) currency() string {
	if d.DefaultCurrency == "" {
		return string(domain.EUR)
	}
	return string(d.DefaultCurrency)
}

// parseAmount reads a strictly positive amount, defaulting the currency.
func (d Dependencies) parseAmount(raw, currency string) (domain.Money, error) {
	if currency == "" {
		currency = d.currency()
	}
	amount, err := domain.ParseMoney(raw, currency)
	if err != nil {
		return domain.Money{}, err
	}
	if !amount.IsPositive() {
		return domain.Money{}, errors.ErrInvalidAmount.WithDetails(amount.String())
	}
	return amount, nil
}

func (d Dependencies) lockAccounts(ctx context.Context, ids ...domain.AccountID) (func(), error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = lock.AccountKey(id.String())
	}
	unlock, err := d.Locker.Lock(ctx, keys...)
	if err != nil {
		d.Logger.Error("Failed to lock accounts", "keys", keys, "error", err)
		return nil, errors.Wrap(errors.InternalError, "could not lock accounts", err)
	}
	return unlock, nil
}

func (d Dependencies) loadAccount(ctx context.Context, id domain.AccountID) (*domain.Account, error) {
	account, err := d.Accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errors.ErrAccountNotFound.WithDetails(id.String())
	}
	return account, nil
}

func (d Dependencies) loadActiveAccount(ctx context.Context, id domain.AccountID) (*domain.Account, error) {
	account, err := d.loadAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return nil, errors.ErrAccountInactive.WithDetails(id.String())
	}
	return account, nil
}

func (d Dependencies) notify(t events.Type, tx domain.Transaction) {
	if d.Events != nil {
		d.Events.Notify(events.FromTransaction(t, tx))
	}
}

// persistenceError attaches operation context to a storage failure and keeps
// its code, so a stale version still reads as concurrent_modification.
func persistenceError(err error, format string, args ...interface{}) *errors.AppError {
	return errors.Wrap(errors.As(err).Code, fmt.Sprintf(format, args...), err)
}
