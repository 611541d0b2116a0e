package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/errors"
	"ledger-transfers/internal/service"
)

type AccountHandler struct {
	accountService     *service.AccountService
	transactionService *service.TransactionService
}

func NewAccountHandler(accountService *service.AccountService, transactionService *service.TransactionService) *AccountHandler {
	return &AccountHandler{
		accountService:     accountService,
		transactionService: transactionService,
	}
}

type CreateAccountRequest struct {
	UserID       string  `json:"user_id"`
	AccountName  string  `json:"account_name"`
	AccountType  string  `json:"account_type"`
	Currency     string  `json:"currency,omitempty"`
	InterestRate *string `json:"interest_rate,omitempty"`
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var rate *decimal.Decimal
	if req.InterestRate != nil {
		d, err := decimal.NewFromString(*req.InterestRate)
		if err != nil {
			writeError(w, errors.NewAppError(errors.InvalidInput, "invalid interest_rate format").WithDetails(err.Error()))
			return
		}
		rate = &d
	}

	account, err := h.accountService.OpenAccount(r.Context(), service.OpenAccountRequest{
		UserID:       req.UserID,
		Name:         req.AccountName,
		Type:         req.AccountType,
		Currency:     req.Currency,
		InterestRate: rate,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountService.GetAccount(r.Context(), mux.Vars(r)["account_id"])
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *AccountHandler) ListUserAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountService.ListAccounts(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		handleError(w, err)
		return
	}

	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

type UpdateAccountRequest struct {
	AccountName string `json:"account_name"`
}

func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req UpdateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.accountService.RenameAccount(r.Context(), mux.Vars(r)["account_id"], req.AccountName)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// CloseAccount answers DELETE; accounts are deactivated, never removed.
func (h *AccountHandler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountService.CloseAccount(r.Context(), mux.Vars(r)["account_id"])
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

type MovementRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency,omitempty"`
	Description string `json:"description,omitempty"`
}

type movementFunc func(context.Context, service.MovementRequest) (*domain.Transaction, error)

func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, h.accountService.Deposit)
}

func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, h.accountService.Withdraw)
}

func (h *AccountHandler) movement(w http.ResponseWriter, r *http.Request, op movementFunc) {
	var req MovementRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := op(r.Context(), service.MovementRequest{
		AccountID:   mux.Vars(r)["account_id"],
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(*tx))
}

func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, appErr := queryInt(r, "limit")
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	txs, err := h.transactionService.History(r.Context(), mux.Vars(r)["account_id"], limit)
	if err != nil {
		handleError(w, err)
		return
	}

	out := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	writeJSON(w, http.StatusOK, out)
}
