package domain

import (
	"strings"
	"time"

	"ledger-transfers/internal/errors"
)

type TransactionType string

const (
	TransactionTransfer     TransactionType = "TRANSFER"
	TransactionDeposit      TransactionType = "DEPOSIT"
	TransactionWithdrawal   TransactionType = "WITHDRAWAL"
	TransactionTransferIBAN TransactionType = "TRANSFER_IBAN"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusRejected  TransactionStatus = "REJECTED"
)

// Transaction is the audit record of a money movement. It is a value: state
// transitions return a new Transaction and leave the receiver unchanged.
type Transaction struct {
	ID               TransactionID
	FromAccountID    *AccountID
	ToAccountID      *AccountID
	CounterpartyIBAN *IBAN
	Amount           Money
	Type             TransactionType
	Status           TransactionStatus
	Description      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type NewTransactionParams struct {
	From             *AccountID
	To               *AccountID
	CounterpartyIBAN *IBAN
	Amount           Money
	Type             TransactionType
	Description      string
}

func NewTransaction(p NewTransactionParams, now time.Time) (Transaction, error) {
	if !p.Amount.IsPositive() {
		return Transaction{}, errors.ErrInvalidAmount
	}

	switch p.Type {
	case TransactionTransfer:
		if p.From == nil || p.To == nil {
			return Transaction{}, errors.NewAppError(errors.InvalidOperation, "transfer requires both accounts")
		}
	case TransactionDeposit:
		if p.To == nil {
			return Transaction{}, errors.NewAppError(errors.InvalidOperation, "deposit requires a destination account")
		}
	case TransactionWithdrawal:
		if p.From == nil {
			return Transaction{}, errors.NewAppError(errors.InvalidOperation, "withdrawal requires a source account")
		}
	case TransactionTransferIBAN:
		if p.From == nil || p.CounterpartyIBAN == nil {
			return Transaction{}, errors.NewAppError(errors.InvalidOperation, "iban transfer requires a source account and an iban")
		}
	default:
		return Transaction{}, errors.NewAppErrorf(errors.InvalidOperation, "unknown transaction type %q", p.Type)
	}

	return Transaction{
		ID:               NewTransactionID(),
		FromAccountID:    p.From,
		ToAccountID:      p.To,
		CounterpartyIBAN: p.CounterpartyIBAN,
		Amount:           p.Amount,
		Type:             p.Type,
		Status:           StatusPending,
		Description:      strings.TrimSpace(p.Description),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (t Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusRejected
}

// Complete moves PENDING to COMPLETED.
func (t Transaction) Complete(now time.Time) (Transaction, error) {
	return t.transition(StatusCompleted, now)
}

// Reject moves PENDING to REJECTED.
func (t Transaction) Reject(now time.Time) (Transaction, error) {
	return t.transition(StatusRejected, now)
}

// Approve is the advisor decision on an external IBAN transfer.
func (t Transaction) Approve(now time.Time) (Transaction, error) {
	if t.Type != TransactionTransferIBAN {
		return Transaction{}, errors.NewAppErrorf(errors.InvalidOperation,
			"only %s transactions are approved manually", TransactionTransferIBAN)
	}
	return t.transition(StatusCompleted, now)
}

func (t Transaction) transition(to TransactionStatus, now time.Time) (Transaction, error) {
	if t.Status != StatusPending {
		return Transaction{}, errors.ErrInvalidStateTransition.WithDetails(
			string(t.Status) + " -> " + string(to))
	}
	next := t
	next.Status = to
	next.UpdatedAt = now
	return next, nil
}
