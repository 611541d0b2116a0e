package errors

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	// Validation
	InvalidInput       ErrorCode = "invalid_input"
	InvalidAmount      ErrorCode = "invalid_amount"
	InvalidIdentifier  ErrorCode = "invalid_identifier"
	InvalidAccountType ErrorCode = "invalid_account_type"
	InvalidIBANFormat  ErrorCode = "invalid_iban_format"
	CurrencyMismatch   ErrorCode = "currency_mismatch"

	// Business rules
	InsufficientFunds   ErrorCode = "insufficient_funds"
	AccountInactive     ErrorCode = "account_inactive"
	SameAccountTransfer ErrorCode = "same_account_transfer"
	AccountNotFound     ErrorCode = "account_not_found"
	AccountNotEmpty     ErrorCode = "account_not_empty"
	TransactionNotFound ErrorCode = "transaction_not_found"
	InvalidOperation    ErrorCode = "invalid_operation"

	// State machine
	InvalidStateTransition ErrorCode = "invalid_state_transition"

	// Infrastructure
	DuplicateIBAN          ErrorCode = "duplicate_iban"
	ConcurrentModification ErrorCode = "concurrent_modification"
	DuplicateEntry         ErrorCode = "duplicate_entry"
	InternalError          ErrorCode = "internal_error"
)

// ErrorKind groups codes by who has to act on them.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindBusinessRule   ErrorKind = "business_rule"
	KindStateMachine   ErrorKind = "state_machine"
	KindInfrastructure ErrorKind = "infrastructure"
)

// Kind classifies an error code.
func Kind(code ErrorCode) ErrorKind {
	switch code {
	case InvalidInput, InvalidAmount, InvalidIdentifier, InvalidAccountType, InvalidIBANFormat, CurrencyMismatch:
		return KindValidation
	case InsufficientFunds, AccountInactive, SameAccountTransfer, AccountNotFound,
		AccountNotEmpty, TransactionNotFound, InvalidOperation:
		return KindBusinessRule
	case InvalidStateTransition:
		return KindStateMachine
	default:
		return KindInfrastructure
	}
}

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap attaches context to an underlying failure without hiding it.
func Wrap(code ErrorCode, message string, err error) *AppError {
	appErr := &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}

// WithDetails returns a copy of e carrying details; the receiver is left untouched
// so the predefined errors below can be shared.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// Kind classifies the error.
func (e *AppError) Kind() ErrorKind {
	return Kind(e.Code)
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidInput, InvalidAmount, InvalidIdentifier, InvalidAccountType,
		InvalidIBANFormat, CurrencyMismatch, SameAccountTransfer:
		return http.StatusBadRequest
	case AccountNotFound, TransactionNotFound:
		return http.StatusNotFound
	case InsufficientFunds, AccountInactive, AccountNotEmpty, InvalidOperation:
		return http.StatusUnprocessableEntity
	case InvalidStateTransition, DuplicateIBAN, ConcurrentModification, DuplicateEntry:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// As extracts an *AppError from err, falling back to an internal error.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	for e := err; e != nil; {
		if appErr, ok := e.(*AppError); ok {
			return appErr
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return Wrap(InternalError, "an unexpected error occurred", err)
}

// Predefined errors for common cases
var (
	ErrInvalidAmount          = NewAppError(InvalidAmount, "amount must be strictly positive")
	ErrInvalidAccountID       = NewAppError(InvalidIdentifier, "invalid account identifier")
	ErrInvalidTransactionID   = NewAppError(InvalidIdentifier, "invalid transaction identifier")
	ErrInvalidUserID          = NewAppError(InvalidIdentifier, "invalid user identifier")
	ErrInvalidAccountType     = NewAppError(InvalidAccountType, "account type must be checking, savings or investment")
	ErrInvalidIBANFormat      = NewAppError(InvalidIBANFormat, "invalid IBAN")
	ErrCurrencyMismatch       = NewAppError(CurrencyMismatch, "currencies do not match")
	ErrInsufficientFunds      = NewAppError(InsufficientFunds, "insufficient funds")
	ErrAccountInactive        = NewAppError(AccountInactive, "account is inactive")
	ErrSameAccountTransfer    = NewAppError(SameAccountTransfer, "source and destination accounts must differ")
	ErrAccountNotFound        = NewAppError(AccountNotFound, "account not found")
	ErrAccountNotEmpty        = NewAppError(AccountNotEmpty, "account balance must be zero")
	ErrTransactionNotFound    = NewAppError(TransactionNotFound, "transaction not found")
	ErrInvalidOperation       = NewAppError(InvalidOperation, "operation not allowed")
	ErrInvalidStateTransition = NewAppError(InvalidStateTransition, "transaction is not pending")
	ErrDuplicateIBAN          = NewAppError(DuplicateIBAN, "iban already assigned")
	ErrConcurrentModification = NewAppError(ConcurrentModification, "account was modified concurrently")
	ErrDuplicateEntry         = NewAppError(DuplicateEntry, "ledger entry already recorded")
	ErrCannotBeginTransaction = NewAppError(InternalError, "cannot begin database transaction")
)
