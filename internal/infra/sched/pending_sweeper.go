package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"educommerce/internal/domain"
	"educommerce/internal/infra/metrics"
	"educommerce/internal/infra/redis"
	"educommerce/internal/usecase"
)

const sweepLockKey = "sweep:pending"

// PendingSweeper periodically applies the pending-timeout rule server-side:
// stale pending subscriptions are reset and stale pending purchases failed,
// whether or not any client ever revisits its checkout page. A redis lock
// keeps a single pass in flight across service instances.
type PendingSweeper struct {
	reconcile usecase.ReconcileUseCase
	locker    redis.Locker
	interval  time.Duration
	log       *zerolog.Logger
}

func NewPendingSweeper(reconcile usecase.ReconcileUseCase, locker redis.Locker, interval time.Duration, logger *zerolog.Logger) *PendingSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "PendingSweeper").Logger()
	return &PendingSweeper{reconcile: reconcile, locker: locker, interval: interval, log: &l}
}

func (w *PendingSweeper) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PendingSweeper) tick(ctx context.Context) {
	token, err := w.locker.TryLock(ctx, sweepLockKey, w.interval)
	if err != nil {
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			w.log.Error().Err(err).Msg("sweep lock error")
		}
		return // another instance holds the pass
	}
	defer func() {
		if err := w.locker.Unlock(ctx, sweepLockKey, token); err != nil {
			w.log.Warn().Err(err).Msg("sweep unlock failed")
		}
	}()

	start := time.Now()
	n, err := w.reconcile.Sweep(ctx)
	metrics.ObserveSweepDuration(float64(time.Since(start).Milliseconds()))
	if err != nil {
		w.log.Error().Err(err).Msg("sweep failed")
		return
	}
	if n > 0 {
		w.log.Info().Int("reset", n).Dur("duration", time.Since(start)).Msg("pending sweep finished")
	}
}
