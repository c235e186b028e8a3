package tasks

import (
	"context"

	"go.uber.org/zap"
)

type ReservationExpirer interface {
	ExpireReservations(ctx context.Context) (int64, error)
}

// ExpireReservations releases pending placements whose hold has lapsed.
func ExpireReservations(ctx context.Context, m ReservationExpirer, log *zap.Logger) (int64, error) {
	n, err := m.ExpireReservations(ctx)
	if err != nil {
		log.Error("failed to expire reservations", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		log.Info("released expired reservations", zap.Int64("count", n))
	}
	return n, nil
}
