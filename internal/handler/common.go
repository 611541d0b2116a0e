package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/errors"
)

type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Data: data}
	json.NewEncoder(w).Encode(response)
}

func writeError(w http.ResponseWriter, appErr *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")

	statusCode := appErr.HTTPStatus()
	errResponse := Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}
	// Infrastructure causes stay in the logs.
	if statusCode == http.StatusInternalServerError {
		errResponse.Message = "an unexpected error occurred"
		errResponse.Details = ""
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{Error: &errResponse})
}

func handleError(w http.ResponseWriter, err error) {
	writeError(w, errors.As(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) (int, *errors.AppError) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.NewAppErrorf(errors.InvalidInput, "%s must be a non-negative integer", key)
	}
	return n, nil
}

type AccountResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	IBAN          string    `json:"iban"`
	IBANFormatted string    `json:"iban_formatted"`
	Name          string    `json:"account_name"`
	Type          string    `json:"account_type"`
	Balance       string    `json:"balance"`
	Currency      string    `json:"currency"`
	InterestRate  *string   `json:"interest_rate,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toAccountResponse(a *domain.Account) AccountResponse {
	resp := AccountResponse{
		ID:            a.ID().String(),
		UserID:        a.UserID().String(),
		IBAN:          a.IBAN().String(),
		IBANFormatted: a.IBAN().Formatted(),
		Name:          a.Name(),
		Type:          string(a.Type()),
		Balance:       a.Balance().StringFixed(),
		Currency:      string(a.Currency()),
		IsActive:      a.IsActive(),
		CreatedAt:     a.CreatedAt(),
		UpdatedAt:     a.UpdatedAt(),
	}
	if rate := a.InterestRate(); rate != nil {
		s := rate.String()
		resp.InterestRate = &s
	}
	return resp
}

type TransactionResponse struct {
	ID               string    `json:"id"`
	FromAccountID    *string   `json:"from_account_id,omitempty"`
	ToAccountID      *string   `json:"to_account_id,omitempty"`
	CounterpartyIBAN *string   `json:"counterparty_iban,omitempty"`
	Amount           string    `json:"amount"`
	Currency         string    `json:"currency"`
	Type             string    `json:"type"`
	Status           string    `json:"status"`
	Description      string    `json:"description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toTransactionResponse(tx domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:          tx.ID.String(),
		Amount:      tx.Amount.StringFixed(),
		Currency:    string(tx.Amount.Currency()),
		Type:        string(tx.Type),
		Status:      string(tx.Status),
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt,
		UpdatedAt:   tx.UpdatedAt,
	}
	if tx.FromAccountID != nil {
		s := tx.FromAccountID.String()
		resp.FromAccountID = &s
	}
	if tx.ToAccountID != nil {
		s := tx.ToAccountID.String()
		resp.ToAccountID = &s
	}
	if tx.CounterpartyIBAN != nil {
		s := tx.CounterpartyIBAN.String()
		resp.CounterpartyIBAN = &s
	}
	return resp
}
