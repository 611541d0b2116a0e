package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/errors"
	"ledger-transfers/internal/lock"
	"ledger-transfers/internal/repository"
	"ledger-transfers/internal/service"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	store := repository.NewMemoryStore()
	deps := service.Dependencies{
		Accounts:        store.Account(),
		Transactions:    store.Transaction(),
		Locker:          lock.NewMemoryLocker(),
		DefaultCurrency: domain.EUR,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	transfer := service.NewTransferMoney(deps)
	txService := service.NewTransactionService(deps)

	router := mux.NewRouter()
	RegisterRoutes(router,
		NewAccountHandler(service.NewAccountService(deps), txService),
		NewTransactionHandler(transfer, service.NewTransferToIBAN(deps, transfer), txService),
	)
	return router
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *Error          `json:"error"`
}

func do(t *testing.T, router http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func openAccount(t *testing.T, router http.Handler, deposit string) AccountResponse {
	t.Helper()
	status, env := do(t, router, http.MethodPost, "/accounts",
		`{"user_id":"`+uuid.NewString()+`","account_name":"Main","account_type":"checking"}`)
	require.Equal(t, http.StatusCreated, status)

	var acc AccountResponse
	require.NoError(t, json.Unmarshal(env.Data, &acc))

	if deposit != "" {
		status, _ = do(t, router, http.MethodPost, "/accounts/"+acc.ID+"/deposits", `{"amount":"`+deposit+`"}`)
		require.Equal(t, http.StatusCreated, status)
	}
	return acc
}

func getAccount(t *testing.T, router http.Handler, id string) AccountResponse {
	t.Helper()
	status, env := do(t, router, http.MethodGet, "/accounts/"+id, "")
	require.Equal(t, http.StatusOK, status)
	var acc AccountResponse
	require.NoError(t, json.Unmarshal(env.Data, &acc))
	return acc
}

func TestCreateAccount(t *testing.T) {
	router := newTestRouter(t)

	acc := openAccount(t, router, "")
	assert.Equal(t, "0.00", acc.Balance)
	assert.Equal(t, "EUR", acc.Currency)
	assert.Equal(t, "checking", acc.Type)
	assert.True(t, acc.IsActive)
	assert.Len(t, acc.IBAN, 27)
	assert.Nil(t, acc.InterestRate)

	status, env := do(t, router, http.MethodPost, "/accounts",
		`{"user_id":"`+uuid.NewString()+`","account_name":"Pot","account_type":"savings","interest_rate":"0.025"}`)
	require.Equal(t, http.StatusCreated, status)
	var savings AccountResponse
	require.NoError(t, json.Unmarshal(env.Data, &savings))
	require.NotNil(t, savings.InterestRate)
	assert.Equal(t, "0.025", *savings.InterestRate)
}

func TestCreateAccountRejectsBadRequests(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		body string
		code errors.ErrorCode
	}{
		{"malformed json", `{"user_id":`, errors.InvalidInput},
		{"unknown field", `{"user_id":"` + uuid.NewString() + `","account_name":"x","account_type":"checking","balance":"9"}`, errors.InvalidInput},
		{"bad interest rate", `{"user_id":"` + uuid.NewString() + `","account_name":"x","account_type":"savings","interest_rate":"lots"}`, errors.InvalidInput},
		{"bad account type", `{"user_id":"` + uuid.NewString() + `","account_name":"x","account_type":"crypto"}`, errors.InvalidAccountType},
		{"bad user id", `{"user_id":"nope","account_name":"x","account_type":"checking"}`, errors.InvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, router, http.MethodPost, "/accounts", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(tt.code), env.Error.Code)
		})
	}
}

func TestTransferEndpoint(t *testing.T) {
	router := newTestRouter(t)
	source := openAccount(t, router, "100.00")
	dest := openAccount(t, router, "")

	status, env := do(t, router, http.MethodPost, "/transactions",
		`{"source_account_id":"`+source.ID+`","destination_account_id":"`+dest.ID+`","amount":"40.00"}`)
	require.Equal(t, http.StatusCreated, status)

	var result service.TransferResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, "COMPLETED", result.Status)

	assert.Equal(t, "60.00", getAccount(t, router, source.ID).Balance)
	assert.Equal(t, "40.00", getAccount(t, router, dest.ID).Balance)

	status, env = do(t, router, http.MethodGet, "/transactions/"+result.TransactionID, "")
	require.Equal(t, http.StatusOK, status)
	var tx TransactionResponse
	require.NoError(t, json.Unmarshal(env.Data, &tx))
	assert.Equal(t, "TRANSFER", tx.Type)
	assert.Equal(t, "40.00", tx.Amount)
	require.NotNil(t, tx.FromAccountID)
	assert.Equal(t, source.ID, *tx.FromAccountID)
}

func TestTransferEndpointErrors(t *testing.T) {
	router := newTestRouter(t)
	source := openAccount(t, router, "10.00")
	dest := openAccount(t, router, "")

	tests := []struct {
		name   string
		body   string
		status int
		code   errors.ErrorCode
	}{
		{"insufficient funds", `{"source_account_id":"` + source.ID + `","destination_account_id":"` + dest.ID + `","amount":"10.01"}`, http.StatusUnprocessableEntity, errors.InsufficientFunds},
		{"zero amount", `{"source_account_id":"` + source.ID + `","destination_account_id":"` + dest.ID + `","amount":"0"}`, http.StatusBadRequest, errors.InvalidAmount},
		{"unknown destination", `{"source_account_id":"` + source.ID + `","destination_account_id":"` + uuid.NewString() + `","amount":"1"}`, http.StatusNotFound, errors.AccountNotFound},
		{"bad source id", `{"source_account_id":"abc","destination_account_id":"` + dest.ID + `","amount":"1"}`, http.StatusBadRequest, errors.InvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, router, http.MethodPost, "/transactions", tt.body)
			assert.Equal(t, tt.status, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(tt.code), env.Error.Code)
		})
	}

	assert.Equal(t, "10.00", getAccount(t, router, source.ID).Balance)
}

func TestIBANTransferReview(t *testing.T) {
	router := newTestRouter(t)
	source := openAccount(t, router, "100.00")

	status, env := do(t, router, http.MethodPost, "/transactions/iban",
		`{"source_account_id":"`+source.ID+`","iban":"FR76 3000 6000 0112 3456 7890 189","amount":"30.00"}`)
	require.Equal(t, http.StatusAccepted, status)
	var result service.TransferResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "PENDING", result.Status)
	assert.Equal(t, "70.00", getAccount(t, router, source.ID).Balance)

	// Reject accepts an empty body.
	status, env = do(t, router, http.MethodPost, "/transactions/"+result.TransactionID+"/reject", "")
	require.Equal(t, http.StatusOK, status)
	var tx TransactionResponse
	require.NoError(t, json.Unmarshal(env.Data, &tx))
	assert.Equal(t, "REJECTED", tx.Status)
	assert.Equal(t, "100.00", getAccount(t, router, source.ID).Balance)

	status, env = do(t, router, http.MethodPost, "/transactions/"+result.TransactionID+"/approve", "")
	assert.Equal(t, http.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(errors.InvalidStateTransition), env.Error.Code)
}

func TestIBANTransferToInternalAccountSettles(t *testing.T) {
	router := newTestRouter(t)
	source := openAccount(t, router, "100.00")
	dest := openAccount(t, router, "")

	status, env := do(t, router, http.MethodPost, "/transactions/iban",
		`{"source_account_id":"`+source.ID+`","iban":"`+dest.IBANFormatted+`","amount":"25.00"}`)
	require.Equal(t, http.StatusCreated, status)
	var result service.TransferResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "COMPLETED", result.Status)
	assert.Equal(t, "25.00", getAccount(t, router, dest.ID).Balance)
}

func TestAccountLifecycle(t *testing.T) {
	router := newTestRouter(t)
	acc := openAccount(t, router, "5.00")

	status, env := do(t, router, http.MethodPatch, "/accounts/"+acc.ID, `{"account_name":"Bills"}`)
	require.Equal(t, http.StatusOK, status)
	var renamed AccountResponse
	require.NoError(t, json.Unmarshal(env.Data, &renamed))
	assert.Equal(t, "Bills", renamed.Name)

	status, env = do(t, router, http.MethodDelete, "/accounts/"+acc.ID, "")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, string(errors.AccountNotEmpty), env.Error.Code)

	status, _ = do(t, router, http.MethodPost, "/accounts/"+acc.ID+"/withdrawals", `{"amount":"5.00"}`)
	require.Equal(t, http.StatusCreated, status)

	status, env = do(t, router, http.MethodDelete, "/accounts/"+acc.ID, "")
	require.Equal(t, http.StatusOK, status)
	var closed AccountResponse
	require.NoError(t, json.Unmarshal(env.Data, &closed))
	assert.False(t, closed.IsActive)

	status, env = do(t, router, http.MethodGet, "/accounts/"+acc.ID+"/transactions", "")
	require.Equal(t, http.StatusOK, status)
	var history []TransactionResponse
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history, 2)

	status, env = do(t, router, http.MethodGet, "/accounts/"+acc.ID+"/transactions?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(errors.InvalidInput), env.Error.Code)
}

func TestListUserAccounts(t *testing.T) {
	router := newTestRouter(t)
	userID := uuid.NewString()
	for _, name := range []string{"One", "Two"} {
		status, _ := do(t, router, http.MethodPost, "/accounts",
			`{"user_id":"`+userID+`","account_name":"`+name+`","account_type":"checking"}`)
		require.Equal(t, http.StatusCreated, status)
	}

	status, env := do(t, router, http.MethodGet, "/users/"+userID+"/accounts", "")
	require.Equal(t, http.StatusOK, status)
	var accounts []AccountResponse
	require.NoError(t, json.Unmarshal(env.Data, &accounts))
	assert.Len(t, accounts, 2)

	status, env = do(t, router, http.MethodGet, "/users/"+uuid.NewString()+"/accounts", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.Wrap(errors.InternalError, "insert entry", io.ErrUnexpectedEOF).WithDetails("pq: connection reset"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, string(errors.InternalError), env.Error.Code)
	assert.Equal(t, "an unexpected error occurred", env.Error.Message)
	assert.Empty(t, env.Error.Details)
}
