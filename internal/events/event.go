// Package events delivers ledger notifications outside the request path.
package events

import (
	"context"
	"time"

	"ledger-transfers/internal/domain"
)

type Type string

const (
	TransferCompleted   Type = "transfer.completed"
	TransferRequested   Type = "transfer.requested"
	TransferApproved    Type = "transfer.approved"
	TransferRejected    Type = "transfer.rejected"
	DepositCompleted    Type = "deposit.completed"
	WithdrawalCompleted Type = "withdrawal.completed"
	TransferReconciled  Type = "transfer.reconciled"
)

// Event is the JSON body published for a transaction that reached a notable state.
type Event struct {
	Type             Type      `json:"type"`
	TransactionID    string    `json:"transaction_id"`
	TransactionType  string    `json:"transaction_type"`
	FromAccountID    string    `json:"from_account_id,omitempty"`
	ToAccountID      string    `json:"to_account_id,omitempty"`
	CounterpartyIBAN string    `json:"counterparty_iban,omitempty"`
	Amount           string    `json:"amount"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// FromTransaction builds the event for tx.
func FromTransaction(t Type, tx domain.Transaction) Event {
	e := Event{
		Type:            t,
		TransactionID:   tx.ID.String(),
		TransactionType: string(tx.Type),
		Amount:          tx.Amount.StringFixed(),
		Currency:        string(tx.Amount.Currency()),
		Status:          string(tx.Status),
		OccurredAt:      tx.UpdatedAt,
	}
	if tx.FromAccountID != nil {
		e.FromAccountID = tx.FromAccountID.String()
	}
	if tx.ToAccountID != nil {
		e.ToAccountID = tx.ToAccountID.String()
	}
	if tx.CounterpartyIBAN != nil {
		e.CounterpartyIBAN = tx.CounterpartyIBAN.String()
	}
	return e
}

// Publisher sends one event to the broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Notifier accepts events without blocking the caller.
type Notifier interface {
	Notify(e Event)
}
