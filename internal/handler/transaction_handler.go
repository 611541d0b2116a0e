package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/service"
)

type TransactionHandler struct {
	transfer           *service.TransferMoney
	ibanTransfer       *service.TransferToIBAN
	transactionService *service.TransactionService
}

func NewTransactionHandler(
	transfer *service.TransferMoney,
	ibanTransfer *service.TransferToIBAN,
	transactionService *service.TransactionService,
) *TransactionHandler {
	return &TransactionHandler{
		transfer:           transfer,
		ibanTransfer:       ibanTransfer,
		transactionService: transactionService,
	}
}

type TransferRequest struct {
	SourceAccountID      string `json:"source_account_id"`
	DestinationAccountID string `json:"destination_account_id"`
	Amount               string `json:"amount"`
	Currency             string `json:"currency,omitempty"`
	Description          string `json:"description,omitempty"`
}

func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.transfer.Execute(r.Context(), service.TransferInput{
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		Amount:               req.Amount,
		Currency:             req.Currency,
		Description:          req.Description,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

type IBANTransferRequest struct {
	SourceAccountID string `json:"source_account_id"`
	IBAN            string `json:"iban"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency,omitempty"`
	Description     string `json:"description,omitempty"`
}

// TransferToIBAN answers 202 while the transfer waits for approval and 201
// when it settled against an internal account.
func (h *TransactionHandler) TransferToIBAN(w http.ResponseWriter, r *http.Request) {
	var req IBANTransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.ibanTransfer.Execute(r.Context(), service.IBANTransferInput{
		SourceAccountID: req.SourceAccountID,
		IBAN:            req.IBAN,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Description:     req.Description,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Status == string(domain.StatusPending) {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.transactionService.Get(r.Context(), mux.Vars(r)["transaction_id"])
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(*tx))
}

func (h *TransactionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	tx, err := h.transactionService.Approve(r.Context(), mux.Vars(r)["transaction_id"])
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(*tx))
}

type RejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *TransactionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	tx, err := h.transactionService.Reject(r.Context(), mux.Vars(r)["transaction_id"], req.Reason)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(*tx))
}
