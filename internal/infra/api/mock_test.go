//go:build !integration

package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"commerce-access/internal/domain/model"
	"commerce-access/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// ---- use cases ----

type mockPaymentUC struct {
	StartCheckoutFunc      func(ctx context.Context, req usecase.CheckoutRequest) (*model.PaymentEvent, error)
	CompletePaymentFunc    func(ctx context.Context, eventID string, caller *model.Caller, confirm *usecase.ProviderConfirmation) (*usecase.CompletionResult, error)
	FailPaymentFunc        func(ctx context.Context, eventID string) (*model.PaymentEvent, error)
	ExpirePaymentFunc      func(ctx context.Context, eventID string) (*model.PaymentEvent, error)
	RecordRefundFunc       func(ctx context.Context, eventID string, total int64) (*model.PaymentEvent, error)
	MarkExpiredPendingFunc func(ctx context.Context) (int, error)
	ListUnfulfilledFunc    func(ctx context.Context, staleAfter time.Duration, limit int) ([]*model.PaymentEvent, error)
	GetFunc                func(ctx context.Context, eventID string) (*model.PaymentEvent, error)
}

var _ usecase.PaymentUseCase = (*mockPaymentUC)(nil)

func (m *mockPaymentUC) StartCheckout(ctx context.Context, req usecase.CheckoutRequest) (*model.PaymentEvent, error) {
	return m.StartCheckoutFunc(ctx, req)
}
func (m *mockPaymentUC) CompletePayment(ctx context.Context, eventID string, caller *model.Caller, confirm *usecase.ProviderConfirmation) (*usecase.CompletionResult, error) {
	return m.CompletePaymentFunc(ctx, eventID, caller, confirm)
}
func (m *mockPaymentUC) FailPayment(ctx context.Context, eventID string) (*model.PaymentEvent, error) {
	return m.FailPaymentFunc(ctx, eventID)
}
func (m *mockPaymentUC) ExpirePayment(ctx context.Context, eventID string) (*model.PaymentEvent, error) {
	return m.ExpirePaymentFunc(ctx, eventID)
}
func (m *mockPaymentUC) RecordRefund(ctx context.Context, eventID string, total int64) (*model.PaymentEvent, error) {
	return m.RecordRefundFunc(ctx, eventID, total)
}
func (m *mockPaymentUC) MarkExpiredPending(ctx context.Context) (int, error) {
	return m.MarkExpiredPendingFunc(ctx)
}
func (m *mockPaymentUC) ListUnfulfilled(ctx context.Context, staleAfter time.Duration, limit int) ([]*model.PaymentEvent, error) {
	return m.ListUnfulfilledFunc(ctx, staleAfter, limit)
}
func (m *mockPaymentUC) Get(ctx context.Context, eventID string) (*model.PaymentEvent, error) {
	return m.GetFunc(ctx, eventID)
}

type mockClaimUC struct {
	ClaimFunc func(ctx context.Context, userID, email string) (*usecase.ClaimResult, error)
}

func (m *mockClaimUC) ClaimGuestPurchases(ctx context.Context, userID, email string) (*usecase.ClaimResult, error) {
	return m.ClaimFunc(ctx, userID, email)
}

type mockOfferUC struct {
	ValidateFunc func(ctx context.Context, code, email, productID string) (*model.OtoOffer, error)
}

var _ usecase.OfferUseCase = (*mockOfferUC)(nil)

func (m *mockOfferUC) ApplyBumpGrant(ctx context.Context, ev *model.PaymentEvent, caller *model.Caller) (*usecase.Fulfillment, error) {
	return nil, nil
}
func (m *mockOfferUC) GenerateOtoOffer(ctx context.Context, ev *model.PaymentEvent, grantTo model.OwnerID) (*model.OtoOffer, error) {
	return nil, nil
}
func (m *mockOfferUC) ValidateOtoOffer(ctx context.Context, code, email, productID string) (*model.OtoOffer, error) {
	return m.ValidateFunc(ctx, code, email, productID)
}
func (m *mockOfferUC) RedeemOtoOffer(ctx context.Context, code, email, eventID string) (*model.OtoOffer, error) {
	return nil, nil
}

// mockUserUC records the identities it was asked to mirror.
type mockUserUC struct {
	mu      sync.Mutex
	ensured []model.Caller
	err     error
}

func (m *mockUserUC) EnsureUser(ctx context.Context, caller *model.Caller) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.ensured = append(m.ensured, *caller)
	return &model.User{ID: caller.ID, Email: caller.Email}, nil
}
func (m *mockUserUC) Get(ctx context.Context, id string) (*model.User, error) {
	return &model.User{ID: id}, nil
}

type mockAccessUC struct {
	ListFunc func(ctx context.Context, userID string) ([]*model.AccessGrant, error)
}

func (m *mockAccessUC) GrantAccess(ctx context.Context, req model.GrantRequest) (*model.AccessGrant, error) {
	return nil, nil
}
func (m *mockAccessUC) HasAccess(ctx context.Context, userID, productID string) (bool, error) {
	return false, nil
}
func (m *mockAccessUC) ListGrants(ctx context.Context, userID string) ([]*model.AccessGrant, error) {
	return m.ListFunc(ctx, userID)
}

// ---- infra ----

type mockLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[key]++
	return m.counts[key] <= limit, nil
}

type mockSeen struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *mockSeen) Seen(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[id]
}
func (m *mockSeen) Mark(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	m.seen[id] = true
	return nil
}

type mockJob struct {
	n     int
	err   error
	calls int
}

func (m *mockJob) RunOnce(ctx context.Context) (int, error) {
	m.calls++
	return m.n, m.err
}
