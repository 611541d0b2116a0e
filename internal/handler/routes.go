package handler

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes mounts the account and transaction endpoints on router.
func RegisterRoutes(router *mux.Router, accounts *AccountHandler, transactions *TransactionHandler) {
	// Account routes
	router.HandleFunc("/accounts", accounts.CreateAccount).Methods("POST")
	router.HandleFunc("/accounts/{account_id}", accounts.GetAccount).Methods("GET")
	router.HandleFunc("/accounts/{account_id}", accounts.UpdateAccount).Methods("PATCH")
	router.HandleFunc("/accounts/{account_id}", accounts.CloseAccount).Methods("DELETE")
	router.HandleFunc("/accounts/{account_id}/deposits", accounts.Deposit).Methods("POST")
	router.HandleFunc("/accounts/{account_id}/withdrawals", accounts.Withdraw).Methods("POST")
	router.HandleFunc("/accounts/{account_id}/transactions", accounts.ListTransactions).Methods("GET")
	router.HandleFunc("/users/{user_id}/accounts", accounts.ListUserAccounts).Methods("GET")

	// Transaction routes
	router.HandleFunc("/transactions", transactions.Transfer).Methods("POST")
	router.HandleFunc("/transactions/iban", transactions.TransferToIBAN).Methods("POST")
	router.HandleFunc("/transactions/{transaction_id}", transactions.GetTransaction).Methods("GET")
	router.HandleFunc("/transactions/{transaction_id}/approve", transactions.Approve).Methods("POST")
	router.HandleFunc("/transactions/{transaction_id}/reject", transactions.Reject).Methods("POST")
}
