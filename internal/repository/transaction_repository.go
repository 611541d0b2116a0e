package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/errors"
)

const transactionColumns = `id, from_account_id, to_account_id, counterparty_iban, amount, currency,
	type, status, description, created_at, updated_at`

type transactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTransactionRepository(db SQLExecutor, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts the record or moves it out of PENDING. A terminal record is never
// overwritten with a different status.
func (r *transactionRepository) Save(ctx context.Context, tx domain.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status      = EXCLUDED.status,
			description = EXCLUDED.description,
			updated_at  = EXCLUDED.updated_at
		WHERE transactions.status = 'PENDING' OR transactions.status = EXCLUDED.status
	`

	var counterparty sql.NullString
	if tx.CounterpartyIBAN != nil {
		counterparty = sql.NullString{String: tx.CounterpartyIBAN.String(), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		tx.ID.UUID,
		nullableAccountID(tx.FromAccountID),
		nullableAccountID(tx.ToAccountID),
		counterparty,
		tx.Amount.StringFixed(),
		string(tx.Amount.Currency()),
		string(tx.Type),
		string(tx.Status),
		tx.Description,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save transaction",
			"transaction_id", tx.ID,
			"status", tx.Status,
			"amount", tx.Amount,
			"error", err)
		return errors.Wrap(errors.InternalError, "failed to save transaction", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.InternalError, "failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		r.logger.Warn("Refusing to leave terminal status", "transaction_id", tx.ID, "status", tx.Status)
		return errors.ErrInvalidStateTransition.WithDetails(tx.ID.String())
	}

	r.logger.Info("Transaction saved", "transaction_id", tx.ID, "status", tx.Status)
	return nil
}

func (r *transactionRepository) FindByID(ctx context.Context, id domain.TransactionID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := r.scanTransaction(r.db.QueryRowContext(ctx, query, id.UUID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get transaction", "transaction_id", id, "error", err)
		return nil, errors.Wrap(errors.InternalError, "failed to get transaction", err)
	}
	return tx, nil
}

func (r *transactionRepository) ListByAccount(ctx context.Context, accountID domain.AccountID, limit int) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, accountID.UUID, limit)
}

func (r *transactionRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = 'PENDING' AND type <> 'TRANSFER_IBAN' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	return r.list(ctx, query, cutoff, limit)
}

func (r *transactionRepository) HasPending(ctx context.Context, accountID domain.AccountID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE status = 'PENDING' AND (from_account_id = $1 OR to_account_id = $1)
		)
	`
	var pending bool
	if err := r.db.QueryRowContext(ctx, query, accountID.UUID).Scan(&pending); err != nil {
		r.logger.Error("Failed to check pending transactions", "account_id", accountID, "error", err)
		return false, errors.Wrap(errors.InternalError, "failed to check pending transactions", err)
	}
	return pending, nil
}

func (r *transactionRepository) list(ctx context.Context, query string, arg interface{}, limit int) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, arg, limit)
	if err != nil {
		r.logger.Error("Failed to list transactions", "arg", arg, "error", err)
		return nil, errors.Wrap(errors.InternalError, "failed to list transactions", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tx, err := r.scanTransaction(rows)
		if err != nil {
			return nil, errors.Wrap(errors.InternalError, "failed to scan transaction", err)
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.InternalError, "failed to list transactions", err)
	}
	return out, nil
}

func (r *transactionRepository) scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx           domain.Transaction
		from, to     uuid.NullUUID
		counterparty sql.NullString
		amountStr    string
		currency     string
		txType       string
		status       string
	)

	err := row.Scan(
		&tx.ID,
		&from,
		&to,
		&counterparty,
		&amountStr,
		&currency,
		&txType,
		&status,
		&tx.Description,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	amount, err := domain.ParseMoney(amountStr, currency)
	if err != nil {
		return nil, err
	}
	tx.Amount = amount
	tx.Type = domain.TransactionType(txType)
	tx.Status = domain.TransactionStatus(status)

	if from.Valid {
		tx.FromAccountID = &domain.AccountID{UUID: from.UUID}
	}
	if to.Valid {
		tx.ToAccountID = &domain.AccountID{UUID: to.UUID}
	}
	if counterparty.Valid {
		iban, err := domain.ParseIBAN(counterparty.String)
		if err != nil {
			return nil, err
		}
		tx.CounterpartyIBAN = &iban
	}

	return &tx, nil
}

func nullableAccountID(id *domain.AccountID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: id.UUID, Valid: true}
}
