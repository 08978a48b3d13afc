package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"commerce-access/internal/infra/metrics"
	red "commerce-access/internal/infra/redis"
	"commerce-access/internal/usecase"
)

const (
	jobSweep     = "sweep"
	sweepLockKey = "lock:job:sweep"
)

// SweepWorker periodically abandons pending payment events past their expiry.
type SweepWorker struct {
	interval time.Duration
	payments usecase.PaymentUseCase
	locker   red.Locker
	log      *zerolog.Logger
}

func NewSweepWorker(interval time.Duration, payments usecase.PaymentUseCase, locker red.Locker, logger *zerolog.Logger) *SweepWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "SweepWorker").Logger()
	return &SweepWorker{interval: interval, payments: payments, locker: locker, log: &l}
}

func (w *SweepWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting sweep worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping sweep worker")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Error().Err(err).Msg("sweep worker error")
			}
		}
	}
}

// RunOnce sweeps once. Another instance holding the job lock makes it a no-op.
func (w *SweepWorker) RunOnce(ctx context.Context) (int, error) {
	release, skip := acquire(ctx, w.locker, sweepLockKey, w.interval, w.log)
	if skip {
		metrics.IncJobRun(jobSweep, "skipped")
		return 0, nil
	}
	defer release()

	n, err := w.payments.MarkExpiredPending(ctx)
	if err != nil {
		metrics.IncJobRun(jobSweep, "error")
		return n, err
	}
	metrics.IncJobRun(jobSweep, "ok")
	metrics.AddJobItems(jobSweep, n)
	if n > 0 {
		w.log.Info().Int("count", n).Msg("expired pending payments abandoned")
	}
	return n, nil
}

// acquire takes the job lock when a locker is configured. A lock backend failure
// does not block the job: the storage transitions are conditional, so overlapping
// runs stay correct.
func acquire(ctx context.Context, locker red.Locker, key string, ttl time.Duration, log *zerolog.Logger) (release func(), skip bool) {
	noop := func() {}
	if locker == nil {
		return noop, false
	}
	token, err := locker.TryLock(ctx, key, ttl)
	switch {
	case errors.Is(err, red.ErrLocked):
		log.Debug().Str("lock", key).Msg("job lock held elsewhere, skipping run")
		return noop, true
	case err != nil:
		log.Warn().Err(err).Str("lock", key).Msg("job lock unavailable, running unlocked")
		return noop, false
	}
	return func() {
		if err := locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn().Err(err).Str("lock", key).Msg("job unlock failed")
		}
	}, false
}
