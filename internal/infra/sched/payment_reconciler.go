package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"commerce-access/internal/domain/model"
	"commerce-access/internal/infra/metrics"
	red "commerce-access/internal/infra/redis"
	"commerce-access/internal/infra/worker"
	"commerce-access/internal/usecase"
)

const (
	jobReconcile     = "reconcile"
	reconcileLockKey = "lock:job:reconcile"
)

// PaymentReconciler periodically re-runs fulfillment for completed payment events that
// never got their fulfillment stamp. This covers a crash between the status change and
// the grant, or a grant that failed and was left for retry.
type PaymentReconciler struct {
	uc         usecase.PaymentUseCase
	pool       *worker.Pool
	locker     red.Locker
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how long a completion may stay unfulfilled before retry
	batch      int
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.PaymentUseCase, pool *worker.Pool, locker red.Locker, interval, staleAfter time.Duration, batch int, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{uc: uc, pool: pool, locker: locker, interval: interval, staleAfter: staleAfter, batch: batch, log: &l}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting payment reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Error().Err(err).Msg("payment reconciler error")
			}
		}
	}
}

// RunOnce reconciles one batch and returns the number of events fulfilled.
// Failures of single events are logged and retried on a later run.
func (w *PaymentReconciler) RunOnce(ctx context.Context) (int, error) {
	release, skip := acquire(ctx, w.locker, reconcileLockKey, w.interval, w.log)
	if skip {
		metrics.IncJobRun(jobReconcile, "skipped")
		return 0, nil
	}
	defer release()

	events, err := w.uc.ListUnfulfilled(ctx, w.staleAfter, w.batch)
	if err != nil {
		metrics.IncJobRun(jobReconcile, "error")
		return 0, err
	}
	if len(events) == 0 {
		metrics.IncJobRun(jobReconcile, "ok")
		return 0, nil
	}

	tasks := make([]worker.Task, 0, len(events))
	for _, ev := range events {
		tasks = append(tasks, w.reconcileTask(ev))
	}

	var (
		ok   int
		errs []error
	)
	if w.pool != nil {
		ok, errs = w.pool.RunAll(ctx, tasks)
	} else {
		for _, task := range tasks {
			if err := task(ctx); err != nil {
				errs = append(errs, err)
				continue
			}
			ok++
		}
	}

	metrics.IncJobRun(jobReconcile, "ok")
	metrics.AddJobItems(jobReconcile, ok)
	w.log.Info().Int("candidates", len(events)).Int("reconciled", ok).Int("failed", len(errs)).Msg("reconcile run finished")
	return ok, ctx.Err()
}

func (w *PaymentReconciler) reconcileTask(ev *model.PaymentEvent) worker.Task {
	return func(ctx context.Context) error {
		if _, err := w.uc.CompletePayment(ctx, ev.ID, nil, nil); err != nil {
			w.log.Warn().Err(err).Str("event_id", ev.ID).Msg("reconcile failed")
			return err
		}
		w.log.Debug().Str("event_id", ev.ID).Msg("reconciled")
		return nil
	}
}
