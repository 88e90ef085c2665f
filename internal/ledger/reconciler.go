package ledger

import (
	"context"
	"log/slog"
	"time"
)

// ReconcilerStore is the sweep's view of the transaction table.
type ReconcilerStore interface {
	FailStaleTransactions(ctx context.Context, olderThan time.Time) ([]string, error)
}

// Reconciler periodically fails royalty transactions stuck in pending.
// A row is stuck when the process died between inserting it and
// incrementing the aggregate; whether the increment landed cannot be
// decided after the fact, so the sweep fails the row for operator
// review instead of re-applying a possibly duplicate credit.
type Reconciler struct {
	store      ReconcilerStore
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
}

func NewReconciler(store ReconcilerStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:      store,
		logger:     logger,
		interval:   time.Minute,
		staleAfter: 5 * time.Minute,
	}
}

// Start runs the sweep until the context is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("royalty reconciler started",
		"interval", r.interval.String(),
		"stale_after", r.staleAfter.String(),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("royalty reconciler stopping")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.staleAfter)
	ids, err := r.store.FailStaleTransactions(ctx, cutoff)
	if err != nil {
		r.logger.Error("reconciliation sweep failed", "error", err)
		return
	}
	for _, id := range ids {
		r.logger.Warn("stale pending royalty transaction failed by reconciler",
			"transaction_id", id,
		)
	}
}
