package tasks

import (
	"context"

	"matrix/ledger"

	"go.uber.org/zap"
)

type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]ledger.Reconciliation, error)
}

// ReconcileWallets checks every wallet against its transaction history and
// returns the number that drifted.
func ReconcileWallets(ctx context.Context, r Reconciler, log *zap.Logger) (int, error) {
	drifted, err := r.ReconcileAll(ctx)
	if err != nil {
		log.Error("wallet reconciliation failed", zap.Error(err))
		return 0, err
	}
	if len(drifted) > 0 {
		log.Warn("wallet reconciliation found drift", zap.Int("wallets", len(drifted)))
	} else {
		log.Debug("wallet reconciliation clean")
	}
	return len(drifted), nil
}
