package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithDetailsDoesNotMutateSentinel(t *testing.T) {
	detailed := ErrAccountNotFound.WithDetails("id=42")

	assert.Equal(t, "id=42", detailed.Details)
	assert.Empty(t, ErrAccountNotFound.Details)
	assert.True(t, stderrors.Is(detailed, ErrAccountNotFound))
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("transfer: %w", NewAppError(InsufficientFunds, "balance 10.00 EUR below 30.00 EUR"))

	assert.True(t, stderrors.Is(err, ErrInsufficientFunds))
	assert.False(t, stderrors.Is(err, ErrAccountInactive))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(InternalError, "failed to save account", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "connection reset", err.Details)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAsFallsBackToInternal(t *testing.T) {
	appErr := As(stderrors.New("boom"))
	assert.Equal(t, InternalError, appErr.Code)

	wrapped := fmt.Errorf("ctx: %w", ErrSameAccountTransfer)
	assert.Equal(t, SameAccountTransfer, As(wrapped).Code)

	assert.Nil(t, As(nil))
}

func TestKindAndStatus(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		kind   ErrorKind
		status int
	}{
		{InvalidAmount, KindValidation, http.StatusBadRequest},
		{CurrencyMismatch, KindValidation, http.StatusBadRequest},
		{InsufficientFunds, KindBusinessRule, http.StatusUnprocessableEntity},
		{AccountNotFound, KindBusinessRule, http.StatusNotFound},
		{SameAccountTransfer, KindBusinessRule, http.StatusBadRequest},
		{InvalidStateTransition, KindStateMachine, http.StatusConflict},
		{InternalError, KindInfrastructure, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := NewAppError(tt.code, "x")
			assert.Equal(t, tt.kind, err.Kind())
			assert.Equal(t, tt.status, err.HTTPStatus())
		})
	}
}
