package domain

import (
	"github.com/google/uuid"

	"ledger-transfers/internal/errors"
)

type AccountID struct{ uuid.UUID }

type TransactionID struct{ uuid.UUID }

type UserID struct{ uuid.UUID }

func NewAccountID() AccountID         { return AccountID{uuid.New()} }
func NewTransactionID() TransactionID { return TransactionID{uuid.New()} }

func ParseAccountID(raw string) (AccountID, error) {
	id, err := parseUUID(raw)
	if err != nil {
		return AccountID{}, errors.ErrInvalidAccountID.WithDetails(err.Error())
	}
	return AccountID{id}, nil
}

func ParseTransactionID(raw string) (TransactionID, error) {
	id, err := parseUUID(raw)
	if err != nil {
		return TransactionID{}, errors.ErrInvalidTransactionID.WithDetails(err.Error())
	}
	return TransactionID{id}, nil
}

func ParseUserID(raw string) (UserID, error) {
	id, err := parseUUID(raw)
	if err != nil {
		return UserID{}, errors.ErrInvalidUserID.WithDetails(err.Error())
	}
	return UserID{id}, nil
}

func (id AccountID) IsZero() bool     { return id.UUID == uuid.Nil }
func (id TransactionID) IsZero() bool { return id.UUID == uuid.Nil }
func (id UserID) IsZero() bool        { return id.UUID == uuid.Nil }

func parseUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, err
	}
	if id == uuid.Nil {
		return uuid.Nil, errors.NewAppError(errors.InvalidIdentifier, "nil identifier")
	}
	return id, nil
}
