// Package jobs runs the periodic housekeeping tasks.
package jobs

import (
	"context"
	"fmt"
	"time"

	"matrix/config"
	tasks "matrix/task"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const runTimeout = 5 * time.Minute

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Start schedules reservation expiry and wallet reconciliation and starts
// the scheduler. Callers stop it with Stop.
func Start(cfg config.JobsConfig, log *zap.Logger, placements tasks.ReservationExpirer, wallets tasks.Reconciler) (*cron.Cron, error) {
	cl := cronLogger{log: log.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if err := register(c, "expire-reservations", cfg.ExpireSpec, func(ctx context.Context) {
		_, _ = tasks.ExpireReservations(ctx, placements, log)
	}); err != nil {
		return nil, err
	}
	if err := register(c, "reconcile-wallets", cfg.ReconcileSpec, func(ctx context.Context) {
		_, _ = tasks.ReconcileWallets(ctx, wallets, log)
	}); err != nil {
		return nil, err
	}

	c.Start()
	log.Info("scheduler started",
		zap.String("expire_spec", cfg.ExpireSpec),
		zap.String("reconcile_spec", cfg.ReconcileSpec))
	return c, nil
}

func register(c *cron.Cron, name, spec string, run func(ctx context.Context)) error {
	if spec == "" || spec == "off" {
		return nil
	}
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		run(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}
