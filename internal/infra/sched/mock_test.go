//go:build !integration

package sched

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"commerce-access/internal/domain/model"
	red "commerce-access/internal/infra/redis"
	"commerce-access/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// fakePayments implements the parts of usecase.PaymentUseCase the jobs call.
type fakePayments struct {
	usecase.PaymentUseCase

	mu          sync.Mutex
	expired     int
	expireErr   error
	unfulfilled []*model.PaymentEvent
	listErr     error
	failIDs     map[string]error
	completed   []string
	staleAfter  time.Duration
	limit       int
}

func (f *fakePayments) MarkExpiredPending(ctx context.Context) (int, error) {
	return f.expired, f.expireErr
}

func (f *fakePayments) ListUnfulfilled(ctx context.Context, staleAfter time.Duration, limit int) ([]*model.PaymentEvent, error) {
	f.staleAfter, f.limit = staleAfter, limit
	return f.unfulfilled, f.listErr
}

func (f *fakePayments) CompletePayment(ctx context.Context, id string, caller *model.Caller, confirm *usecase.ProviderConfirmation) (*usecase.CompletionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != nil || confirm != nil {
		panic("reconciler must not pass a caller or a confirmation")
	}
	if err := f.failIDs[id]; err != nil {
		return nil, err
	}
	f.completed = append(f.completed, id)
	return &usecase.CompletionResult{Event: &model.PaymentEvent{ID: id}}, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	unlocked []string
}

var _ red.Locker = (*fakeLocker)(nil)

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", l.err
	}
	if l.held[key] {
		return "", red.ErrLocked
	}
	return "token-" + key, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocked = append(l.unlocked, key)
	return nil
}
