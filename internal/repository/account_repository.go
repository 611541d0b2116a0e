package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/errors"
)

const (
	pqUniqueViolation = "23505"
	ibanConstraint    = "accounts_iban_key"
	entriesConstraint = "account_entries_pkey"

	accountColumns = `id, user_id, iban, account_name, account_type, currency, balance,
		interest_rate, is_active, version, created_at, updated_at`
)

type accountRepository struct {
	store  *Store
	logger *slog.Logger
}

func (r *accountRepository) FindByID(ctx context.Context, id domain.AccountID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(r.store.executor.QueryRowContext(ctx, query, id.UUID), "account_id", id.String())
}

func (r *accountRepository) FindByIBAN(ctx context.Context, iban domain.IBAN) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE iban = $1`
	return r.scanAccount(r.store.executor.QueryRowContext(ctx, query, iban.String()), "iban", iban.String())
}

func (r *accountRepository) ListByUser(ctx context.Context, userID domain.UserID) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.store.executor.QueryContext(ctx, query, userID.UUID)
	if err != nil {
		r.logger.Error("Failed to list accounts", "user_id", userID, "error", err)
		return nil, errors.Wrap(errors.InternalError, "failed to list accounts", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := r.scanAccount(rows, "user_id", userID.String())
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.InternalError, "failed to list accounts", err)
	}
	return accounts, nil
}

// Save upserts the account row guarded by its version and appends its pending
// entries in the same database transaction.
func (r *accountRepository) Save(ctx context.Context, account *domain.Account) error {
	var newVersion int64

	err := r.store.WithTransaction(ctx, func(tx *Store) error {
		snap := account.Snapshot()

		var rate decimal.NullDecimal
		if snap.InterestRate != nil {
			rate = decimal.NullDecimal{Decimal: *snap.InterestRate, Valid: true}
		}

		query := `
			INSERT INTO accounts (` + accountColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				account_name  = EXCLUDED.account_name,
				balance       = EXCLUDED.balance,
				interest_rate = EXCLUDED.interest_rate,
				is_active     = EXCLUDED.is_active,
				version       = accounts.version + 1,
				updated_at    = EXCLUDED.updated_at
			WHERE accounts.version = $12
			RETURNING version
		`

		err := tx.executor.QueryRowContext(ctx, query,
			snap.ID.UUID,
			snap.UserID.UUID,
			snap.IBAN.String(),
			snap.Name,
			string(snap.Type),
			string(snap.Balance.Currency()),
			snap.Balance.StringFixed(),
			rate,
			snap.IsActive,
			snap.CreatedAt,
			snap.UpdatedAt,
			snap.Version,
		).Scan(&newVersion)

		if err == sql.ErrNoRows {
			r.logger.Warn("Stale account version", "account_id", snap.ID, "version", snap.Version)
			return errors.ErrConcurrentModification.WithDetails(snap.ID.String())
		}
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation && pqErr.Constraint == ibanConstraint {
				r.logger.Warn("Duplicate IBAN", "account_id", snap.ID, "iban", snap.IBAN)
				return errors.ErrDuplicateIBAN.WithDetails(snap.IBAN.String())
			}
			r.logger.Error("Failed to save account", "account_id", snap.ID, "error", err)
			return errors.Wrap(errors.InternalError, "failed to save account", err)
		}

		for _, entry := range account.PendingEntries() {
			if err := r.insertEntry(ctx, tx.executor, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	account.MarkPersisted(newVersion)
	r.logger.Info("Account saved", "account_id", account.ID(), "version", newVersion, "balance", account.Balance())
	return nil
}

func (r *accountRepository) insertEntry(ctx context.Context, db SQLExecutor, e domain.Entry) error {
	query := `
		INSERT INTO account_entries (account_id, transaction_id, direction, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := db.ExecContext(ctx, query,
		e.AccountID.UUID,
		e.TransactionID.UUID,
		string(e.Direction),
		e.Amount.StringFixed(),
		string(e.Amount.Currency()),
		e.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation && pqErr.Constraint == entriesConstraint {
			r.logger.Warn("Duplicate ledger entry",
				"account_id", e.AccountID, "transaction_id", e.TransactionID, "direction", e.Direction)
			return errors.ErrDuplicateEntry.WithDetails(e.TransactionID.String())
		}
		r.logger.Error("Failed to insert ledger entry", "account_id", e.AccountID, "error", err)
		return errors.Wrap(errors.InternalError, "failed to insert ledger entry", err)
	}
	return nil
}

func (r *accountRepository) HasEntry(ctx context.Context, accountID domain.AccountID, txID domain.TransactionID, dir domain.EntryDirection) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM account_entries
			WHERE account_id = $1 AND transaction_id = $2 AND direction = $3
		)
	`

	var exists bool
	if err := r.store.executor.QueryRowContext(ctx, query, accountID.UUID, txID.UUID, string(dir)).Scan(&exists); err != nil {
		r.logger.Error("Failed to look up ledger entry", "account_id", accountID, "transaction_id", txID, "error", err)
		return false, errors.Wrap(errors.InternalError, "failed to look up ledger entry", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *accountRepository) scanAccount(row rowScanner, key, value string) (*domain.Account, error) {
	var (
		snap        domain.AccountSnapshot
		ibanStr     string
		accountType string
		currency    string
		balanceStr  string
		rate        decimal.NullDecimal
	)

	err := row.Scan(
		&snap.ID,
		&snap.UserID,
		&ibanStr,
		&snap.Name,
		&accountType,
		&currency,
		&balanceStr,
		&rate,
		&snap.IsActive,
		&snap.Version,
		&snap.CreatedAt,
		&snap.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("Failed to get account", key, value, "error", err)
		return nil, errors.Wrap(errors.InternalError, "failed to get account", err)
	}

	iban, err := domain.ParseIBAN(ibanStr)
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "stored iban is invalid", err)
	}
	snap.IBAN = iban
	snap.Type = domain.AccountType(accountType)

	balance, err := domain.ParseMoney(balanceStr, currency)
	if err != nil {
		r.logger.Error("Failed to parse balance", key, value, "balance_str", balanceStr, "error", err)
		return nil, errors.Wrap(errors.InternalError, "failed to parse balance", err)
	}
	snap.Balance = balance

	if rate.Valid {
		v := rate.Decimal
		snap.InterestRate = &v
	}

	return domain.RestoreAccount(snap)
}
