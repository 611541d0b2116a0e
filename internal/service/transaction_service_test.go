package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/errors"
	"ledger-transfers/internal/events"
)

const externalIBAN = "FR7630006000011234567890189"

func requestIBANTransfer(t *testing.T, f *fixture, from *domain.Account, amount string) TransferResult {
	t.Helper()
	svc := NewTransferToIBAN(f.deps, NewTransferMoney(f.deps))
	result, err := svc.Execute(context.Background(), IBANTransferInput{
		SourceAccountID: from.ID().String(),
		IBAN:            "FR76 3000 6000 0112 3456 7890 189",
		Amount:          amount,
		Description:     "invoice 42",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	return result
}

func TestTransferToExternalIBANStaysPending(t *testing.T) {
	f := newFixture(t)
	a := f.seedAccount(t, "100.00")

	result := requestIBANTransfer(t, f, a, "40.00")
	assert.Equal(t, string(domain.StatusPending), result.Status)

	tx := f.transaction(t, result.TransactionID)
	assert.Equal(t, domain.TransactionTransferIBAN, tx.Type)
	require.NotNil(t, tx.CounterpartyIBAN)
	assert.Equal(t, externalIBAN, tx.CounterpartyIBAN.String())
	assert.Nil(t, tx.ToAccountID)
	assert.Equal(t, "60.00 EUR", f.balance(t, a.ID()))
	assert.Equal(t, []events.Type{events.TransferRequested}, f.notifier.Types())
}

func TestTransferToInternalIBANSettlesImmediately(t *testing.T) {
	f := newFixture(t)
	a := f.seedAccount(t, "100.00")
	b := f.seedAccount(t, "0")

	svc := NewTransferToIBAN(f.deps, NewTransferMoney(f.deps))
	result, err := svc.Execute(context.Background(), IBANTransferInput{
		SourceAccountID: a.ID().String(),
		IBAN:            b.IBAN().Formatted(),
		Amount:          "25",
	})
	require.NoError(t, err)

	tx := f.transaction(t, result.TransactionID)
	assert.Equal(t, domain.TransactionTransfer, tx.Type)
	assert.Equal(t, domain.StatusCompleted, tx.Status)
	assert.Equal(t, "75.00 EUR", f.balance(t, a.ID()))
	assert.Equal(t, "25.00 EUR", f.balance(t, b.ID()))
}

func TestTransferToIBANValidation(t *testing.T) {
	f := newFixture(t)
	a := f.seedAccount(t, "10.00")
	svc := NewTransferToIBAN(f.deps, NewTransferMoney(f.deps))

	result, err := svc.Execute(context.Background(), IBANTransferInput{
		SourceAccountID: a.ID().String(), IBAN: "FR7630006000011234567890188", Amount: "1",
	})
	assert.True(t, hasCode(err, errors.InvalidIBANFormat))
	assert.Equal(t, errors.InvalidIBANFormat, result.ErrorCode)

	_, err = svc.Execute(context.Background(), IBANTransferInput{
		SourceAccountID: a.ID().String(), IBAN: externalIBAN, Amount: "11",
	})
	assert.True(t, hasCode(err, errors.InsufficientFunds))
	assert.Equal(t, "10.00 EUR", f.balance(t, a.ID()))
	assert.Empty(t, f.history(t, a.ID()))
}

func TestApproveIBANTransfer(t *testing.T) {
	f := newFixture(t)
	a := f.seedAccount(t, "100.00")
	result := requestIBANTransfer(t, f, a, "40.00")
	svc := NewTransactionService(f.deps)

	approved, err := svc.Approve(context.Background(), result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, approved.Status)
	assert.Equal(t, domain.StatusCompleted, f.transaction(t, result.TransactionID).Status)
	assert.Equal(t, "60.00 EUR", f.balance(t, a.ID()))

	_, err = svc.Approve(context.Background(), result.TransactionID)
	assert.True(t, hasCode(err, errors.InvalidStateTransition))

	_, err = svc.Reject(context.Background(), result.TransactionID, "too late")
	assert.True(t, hasCode(err, errors.InvalidStateTransition))
	assert.Equal(t, "60.00 EUR", f.balance(t, a.ID()))
}

func TestRejectIBANTransferRefundsSource(t *testing.T) {
	f := newFixture(t)
	a := f.seedAccount(t, "100.00")
	result := requestIBANTransfer(t, f, a, "40.00")
	svc := NewTransactionService(f.deps)

	rejected, err := svc.Reject(context.Background(), result.TransactionID, "suspicious beneficiary")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	assert.Contains(t, rejected.Description, "suspicious beneficiary")
	assert.Equal(t, "100.00 EUR", f.balance(t, a.ID()))

	_, err = svc.Reject(context.Background(), result.TransactionID, "")
	assert.True(t, hasCode(err, errors.InvalidStateTransition))
	assert.Equal(t, "100.00 EUR", f.balance(t, a.ID()))

	assert.Equal(t, []events.Type{events.TransferRequested, events.TransferRejected}, f.notifier.Types())
}

func TestRejectRetriedAfterFailureRefundsOnce(t *testing.T) {
	f := newFixture(t)
	a := f.seedAccount(t, "100.00")
	result := requestIBANTransfer(t, f, a, "40.00")
	svc := NewTransactionService(f.deps)

	f.txs.failStatus = domain.StatusRejected
	_, err := svc.Reject(context.Background(), result.TransactionID, "")
	require.Error(t, err)
	assert.Equal(t, "100.00 EUR", f.balance(t, a.ID()))
	assert.Equal(t, domain.StatusPending, f.transaction(t, result.TransactionID).Status)

	f.txs.failStatus = ""
	_, err = svc.Reject(context.Background(), result.TransactionID, "")
	require.NoError(t, err)
	assert.Equal(t, "100.00 EUR", f.balance(t, a.ID()))
	assert.Len(t, f.store.Entries(a.ID()), 3)
}

func TestReviewOnlyAppliesToIBANTransfers(t *testing.T) {
	f := newFixture(t)
	a := f.seedAccount(t, "100.00")
	b := f.seedAccount(t, "0")
	result, err := NewTransferMoney(f.deps).Execute(context.Background(), transferInput(a, b, "1"))
	require.NoError(t, err)
	svc := NewTransactionService(f.deps)

	_, err = svc.Approve(context.Background(), result.TransactionID)
	assert.True(t, hasCode(err, errors.InvalidOperation))
	_, err = svc.Reject(context.Background(), result.TransactionID, "")
	assert.True(t, hasCode(err, errors.InvalidOperation))

	_, err = svc.Approve(context.Background(), domain.NewTransactionID().String())
	assert.True(t, hasCode(err, errors.TransactionNotFound))
	_, err = svc.Get(context.Background(), "not-a-uuid")
	assert.True(t, hasCode(err, errors.InvalidIdentifier))
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	a := f.seedAccount(t, "100.00")
	b := f.seedAccount(t, "0")
	transfer := NewTransferMoney(f.deps)
	for i := 0; i < 3; i++ {
		f.clock.Advance(1)
		_, err := transfer.Execute(context.Background(), transferInput(a, b, "1"))
		require.NoError(t, err)
	}
	svc := NewTransactionService(f.deps)

	all, err := svc.History(context.Background(), b.ID().String(), 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[2].CreatedAt))

	limited, err := svc.History(context.Background(), a.ID().String(), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	_, err = svc.History(context.Background(), domain.NewAccountID().String(), 10)
	assert.True(t, hasCode(err, errors.AccountNotFound))
}
