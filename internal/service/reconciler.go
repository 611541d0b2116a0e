package service

import (
	"context"
	"time"

	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/events"
	"ledger-transfers/internal/metrics"
)

type ReconcilerConfig struct {
	// Threshold is how old a PENDING transaction must be before it is
	// considered abandoned by the request that created it.
	Threshold time.Duration
	BatchSize int
}

// ReconcileReport summarizes one pass.
type ReconcileReport struct {
	Scanned      int      `json:"scanned"`
	Completed    int      `json:"completed"`
	Repaired     int      `json:"repaired"`
	Rejected     int      `json:"rejected"`
	Failed       int      `json:"failed"`
	ManualReview []string `json:"manual_review,omitempty"`
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeRepaired
	outcomeRejected
	outcomeManual
	outcomeSkipped
)

// Reconciler resolves PENDING transactions left behind by a partial failure,
// using the per-account ledger entries as evidence of what was applied:
//
//   - every expected entry present: the transaction is completed
//   - no entry present: nothing moved, the transaction is rejected
//   - a transfer whose debit landed but whose credit did not: the credit is
//     re-applied to the destination, then the transaction is completed
//   - anything else is left PENDING for manual review
//
// External IBAN transfers are excluded; they wait for an advisor.
type Reconciler struct {
	deps Dependencies
	cfg  ReconcilerConfig
}

func NewReconciler(deps Dependencies, cfg ReconcilerConfig) *Reconciler {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{deps: deps, cfg: cfg}
}

func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	cutoff := r.deps.now().Add(-r.cfg.Threshold)
	pending, err := r.deps.Transactions.ListPendingBefore(ctx, cutoff, r.cfg.BatchSize)
	if err != nil {
		return report, err
	}

	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		result, err := r.reconcile(ctx, tx)
		if err != nil {
			report.Failed++
			r.deps.Logger.Error("Failed to reconcile transaction", "transaction_id", tx.ID, "error", err)
			continue
		}
		switch result {
		case outcomeCompleted:
			report.Completed++
		case outcomeRepaired:
			report.Repaired++
		case outcomeRejected:
			report.Rejected++
		case outcomeManual:
			report.ManualReview = append(report.ManualReview, tx.ID.String())
		}
	}

	metrics.ReconcileOutcome("completed", report.Completed)
	metrics.ReconcileOutcome("repaired", report.Repaired)
	metrics.ReconcileOutcome("rejected", report.Rejected)
	metrics.ReconcileOutcome("failed", report.Failed)
	metrics.ReconcileOutcome("manual_review", len(report.ManualReview))

	if report.Scanned > 0 {
		r.deps.Logger.Info("Reconciliation pass finished",
			"scanned", report.Scanned,
			"completed", report.Completed,
			"repaired", report.Repaired,
			"rejected", report.Rejected,
			"failed", report.Failed,
			"manual_review", len(report.ManualReview))
	}
	return report, nil
}

func (r *Reconciler) reconcile(ctx context.Context, tx domain.Transaction) (outcome, error) {
	var ids []domain.AccountID
	if tx.FromAccountID != nil {
		ids = append(ids, *tx.FromAccountID)
	}
	if tx.ToAccountID != nil {
		ids = append(ids, *tx.ToAccountID)
	}
	unlock, err := r.deps.lockAccounts(ctx, ids...)
	if err != nil {
		return 0, err
	}
	defer unlock()

	// Re-read under the lock; the originating request may have finished.
	current, err := r.deps.Transactions.FindByID(ctx, tx.ID)
	if err != nil {
		return 0, err
	}
	if current == nil || current.IsTerminal() {
		return outcomeSkipped, nil
	}
	tx = *current

	debited, err := r.hasEntry(ctx, tx.FromAccountID, tx.ID, domain.EntryDebit)
	if err != nil {
		return 0, err
	}
	credited, err := r.hasEntry(ctx, tx.ToAccountID, tx.ID, domain.EntryCredit)
	if err != nil {
		return 0, err
	}
	wantDebit := tx.FromAccountID != nil
	wantCredit := tx.ToAccountID != nil

	switch {
	case debited == wantDebit && credited == wantCredit:
		return outcomeCompleted, r.finish(ctx, tx, outcomeCompleted)

	case !debited && !credited:
		return outcomeRejected, r.finish(ctx, tx, outcomeRejected)

	case tx.Type == domain.TransactionTransfer && debited && !credited:
		dest, err := r.deps.loadAccount(ctx, *tx.ToAccountID)
		if err != nil {
			return 0, err
		}
		if !dest.IsActive() {
			r.deps.Logger.Warn("Destination inactive, leaving for manual review",
				"transaction_id", tx.ID, "destination_account_id", dest.ID())
			return outcomeManual, nil
		}
		if err := dest.Credit(tx.ID, tx.Amount, r.deps.now()); err != nil {
			return 0, err
		}
		if err := r.deps.Accounts.Save(ctx, dest); err != nil {
			return 0, persistenceError(err, "reconcile %s: crediting destination", tx.ID)
		}
		return outcomeRepaired, r.finish(ctx, tx, outcomeRepaired)

	default:
		r.deps.Logger.Warn("Inconsistent ledger evidence, leaving for manual review",
			"transaction_id", tx.ID,
			"debited", debited,
			"credited", credited)
		return outcomeManual, nil
	}
}

func (r *Reconciler) hasEntry(ctx context.Context, id *domain.AccountID, txID domain.TransactionID, dir domain.EntryDirection) (bool, error) {
	if id == nil {
		return false, nil
	}
	return r.deps.Accounts.HasEntry(ctx, *id, txID, dir)
}

func (r *Reconciler) finish(ctx context.Context, tx domain.Transaction, o outcome) error {
	var (
		next domain.Transaction
		err  error
	)
	if o == outcomeRejected {
		next, err = tx.Reject(r.deps.now())
	} else {
		next, err = tx.Complete(r.deps.now())
	}
	if err != nil {
		return err
	}
	if err := r.deps.Transactions.Save(ctx, next); err != nil {
		return persistenceError(err, "reconcile %s", tx.ID)
	}

	r.deps.Logger.Info("Transaction reconciled", "transaction_id", tx.ID, "status", next.Status)
	if o != outcomeRejected {
		r.deps.notify(events.TransferReconciled, next)
	}
	return nil
}
