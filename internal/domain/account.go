package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger-transfers/internal/errors"
)

type AccountType string

const (
	AccountTypeChecking   AccountType = "checking"
	AccountTypeSavings    AccountType = "savings"
	AccountTypeInvestment AccountType = "investment"
)

func ParseAccountType(raw string) (AccountType, error) {
	switch t := AccountType(strings.ToLower(strings.TrimSpace(raw))); t {
	case AccountTypeChecking, AccountTypeSavings, AccountTypeInvestment:
		return t, nil
	default:
		return "", errors.ErrInvalidAccountType.WithDetails(raw)
	}
}

type EntryDirection string

const (
	EntryDebit  EntryDirection = "debit"
	EntryCredit EntryDirection = "credit"
)

// Entry is the per-account evidence that a transaction moved money on it.
// (AccountID, TransactionID, Direction) is unique.
type Entry struct {
	AccountID     AccountID
	TransactionID TransactionID
	Direction     EntryDirection
	Amount        Money
	CreatedAt     time.Time
}

// Account is the aggregate owning the balance invariant. Balance only moves
// through Credit and Debit.
type Account struct {
	id           AccountID
	userID       UserID
	iban         IBAN
	name         string
	accountType  AccountType
	balance      Money
	interestRate *decimal.Decimal
	isActive     bool
	version      int64
	createdAt    time.Time
	updatedAt    time.Time

	pending []Entry
}

type OpenAccountParams struct {
	UserID       UserID
	Name         string
	Type         string
	Currency     Currency
	InterestRate *decimal.Decimal
}

// OpenAccount creates an active account with a zero balance.
func OpenAccount(p OpenAccountParams, iban IBAN, now time.Time) (*Account, error) {
	accountType, err := ParseAccountType(p.Type)
	if err != nil {
		return nil, err
	}
	if p.UserID.IsZero() {
		return nil, errors.ErrInvalidUserID
	}
	if iban.IsZero() {
		return nil, errors.ErrInvalidIBANFormat.WithDetails("missing iban")
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "account name is required")
	}
	currency := p.Currency
	if currency == "" {
		currency = EUR
	}

	var rate *decimal.Decimal
	if p.InterestRate != nil {
		if accountType != AccountTypeSavings {
			return nil, errors.NewAppError(errors.InvalidOperation, "interest rate only applies to savings accounts")
		}
		if p.InterestRate.IsNegative() || p.InterestRate.GreaterThan(decimal.NewFromInt(100)) {
			return nil, errors.NewAppError(errors.InvalidInput, "interest rate must be between 0 and 100")
		}
		r := *p.InterestRate
		rate = &r
	}

	return &Account{
		id:           NewAccountID(),
		userID:       p.UserID,
		iban:         iban,
		name:         name,
		accountType:  accountType,
		balance:      ZeroMoney(currency),
		interestRate: rate,
		isActive:     true,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// AccountSnapshot is the persisted shape of an account.
type AccountSnapshot struct {
	ID           AccountID
	UserID       UserID
	IBAN         IBAN
	Name         string
	Type         AccountType
	Balance      Money
	InterestRate *decimal.Decimal
	IsActive     bool
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RestoreAccount rebuilds an aggregate loaded from storage.
func RestoreAccount(s AccountSnapshot) (*Account, error) {
	if s.Balance.IsNegative() {
		return nil, errors.NewAppErrorf(errors.InternalError, "stored balance of account %s is negative", s.ID)
	}
	return &Account{
		id:           s.ID,
		userID:       s.UserID,
		iban:         s.IBAN,
		name:         s.Name,
		accountType:  s.Type,
		balance:      s.Balance,
		interestRate: s.InterestRate,
		isActive:     s.IsActive,
		version:      s.Version,
		createdAt:    s.CreatedAt,
		updatedAt:    s.UpdatedAt,
	}, nil
}

func (a *Account) Snapshot() AccountSnapshot {
	return AccountSnapshot{
		ID:           a.id,
		UserID:       a.userID,
		IBAN:         a.iban,
		Name:         a.name,
		Type:         a.accountType,
		Balance:      a.balance,
		InterestRate: a.interestRate,
		IsActive:     a.isActive,
		Version:      a.version,
		CreatedAt:    a.createdAt,
		UpdatedAt:    a.updatedAt,
	}
}

func (a *Account) ID() AccountID                  { return a.id }
func (a *Account) UserID() UserID                 { return a.userID }
func (a *Account) IBAN() IBAN                     { return a.iban }
func (a *Account) Name() string                   { return a.name }
func (a *Account) Type() AccountType              { return a.accountType }
func (a *Account) Balance() Money                 { return a.balance }
func (a *Account) Currency() Currency             { return a.balance.Currency() }
func (a *Account) InterestRate() *decimal.Decimal { return a.interestRate }
func (a *Account) IsActive() bool                 { return a.isActive }
func (a *Account) Version() int64                 { return a.version }
func (a *Account) CreatedAt() time.Time           { return a.createdAt }
func (a *Account) UpdatedAt() time.Time           { return a.updatedAt }

// HasEnoughBalance reports balance >= amount. Accounts are single currency, so a
// mismatch is an invalid operation rather than a plain "no".
func (a *Account) HasEnoughBalance(amount Money) (bool, error) {
	if amount.Currency() != a.balance.Currency() {
		return false, errors.NewAppErrorf(errors.InvalidOperation,
			"account %s holds %s, not %s", a.id, a.balance.Currency(), amount.Currency())
	}
	return a.balance.GreaterThanOrEqual(amount)
}

// Credit increases the balance. There is no upper bound.
func (a *Account) Credit(txID TransactionID, amount Money, now time.Time) error {
	if err := a.checkMovement(txID, amount); err != nil {
		return err
	}
	balance, err := a.balance.Add(amount)
	if err != nil {
		return err
	}
	a.apply(txID, EntryCredit, amount, balance, now)
	return nil
}

// Debit decreases the balance; it is rejected before any mutation when the
// balance would go below zero.
func (a *Account) Debit(txID TransactionID, amount Money, now time.Time) error {
	if err := a.checkMovement(txID, amount); err != nil {
		return err
	}
	ok, err := a.HasEnoughBalance(amount)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrInsufficientFunds.WithDetails(
			"balance " + a.balance.String() + " is below " + amount.String())
	}
	balance, err := a.balance.Subtract(amount)
	if err != nil {
		return err
	}
	a.apply(txID, EntryDebit, amount, balance, now)
	return nil
}

func (a *Account) checkMovement(txID TransactionID, amount Money) error {
	if !amount.IsPositive() {
		return errors.ErrInvalidAmount
	}
	if txID.IsZero() {
		return errors.ErrInvalidTransactionID
	}
	if amount.Currency() != a.balance.Currency() {
		return errors.NewAppErrorf(errors.InvalidOperation,
			"account %s holds %s, not %s", a.id, a.balance.Currency(), amount.Currency())
	}
	return nil
}

func (a *Account) apply(txID TransactionID, dir EntryDirection, amount, balance Money, now time.Time) {
	a.balance = balance
	a.updatedAt = now
	a.pending = append(a.pending, Entry{
		AccountID:     a.id,
		TransactionID: txID,
		Direction:     dir,
		Amount:        amount,
		CreatedAt:     now,
	})
}

// CanBeDeleted is true only for an exactly zero balance.
func (a *Account) CanBeDeleted() bool {
	return a.balance.IsZero()
}

// Close deactivates an empty account.
func (a *Account) Close(now time.Time) error {
	if !a.CanBeDeleted() {
		return errors.ErrAccountNotEmpty.WithDetails("balance is " + a.balance.String())
	}
	a.isActive = false
	a.updatedAt = now
	return nil
}

func (a *Account) UpdateName(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.NewAppError(errors.InvalidInput, "account name is required")
	}
	a.name = name
	a.updatedAt = now
	return nil
}

// PendingEntries returns the entries produced since the account was loaded.
func (a *Account) PendingEntries() []Entry {
	out := make([]Entry, len(a.pending))
	copy(out, a.pending)
	return out
}

// MarkPersisted is called by repositories once the row and its entries are durable.
func (a *Account) MarkPersisted(version int64) {
	a.version = version
	a.pending = nil
}
