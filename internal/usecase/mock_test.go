//go:build !integration

package usecase

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"commerce-access/internal/domain"
	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
)

// =============================
// Repositories (in-memory)
// =============================

// ---- Users ----

type memUserRepo struct {
	mu   sync.Mutex
	byID map[string]model.User
}

var _ repository.UserRepository = (*memUserRepo)(nil)

func newMemUserRepo() *memUserRepo { return &memUserRepo{byID: map[string]model.User{}} }

func (r *memUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *u
	c.Email = model.NormalizeEmail(c.Email)
	r.byID[u.ID] = c
	return nil
}

func (r *memUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (r *memUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if model.SameEmail(u.Email, email) {
			c := u
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ---- Products ----

type memProductRepo struct {
	mu   sync.Mutex
	byID map[string]model.Product
}

var _ repository.ProductRepository = (*memProductRepo)(nil)

func newMemProductRepo() *memProductRepo { return &memProductRepo{byID: map[string]model.Product{}} }

func (r *memProductRepo) Save(ctx context.Context, tx repository.Tx, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = *p
	return nil
}

func (r *memProductRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *memProductRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Product, 0, len(r.byID))
	for _, p := range r.byID {
		c := p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- Payment events ----

type memEventRepo struct {
	mu   sync.Mutex
	byID map[string]model.PaymentEvent
}

var _ repository.PaymentEventRepository = (*memEventRepo)(nil)

func newMemEventRepo() *memEventRepo { return &memEventRepo{byID: map[string]model.PaymentEvent{}} }

func (r *memEventRepo) Create(ctx context.Context, tx repository.Tx, ev *model.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[ev.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.byID[ev.ID] = *ev
	return nil
}

func (r *memEventRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ev, nil
}

func (r *memEventRepo) TransitionFromPending(ctx context.Context, tx repository.Tx, id string, to model.PaymentStatus, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.byID[id]
	if !ok || ev.Status != model.PaymentStatusPending {
		return false, nil
	}
	ev.Status = to
	ev.UpdatedAt = at
	switch to {
	case model.PaymentStatusCompleted:
		ev.CompletedAt = &at
	case model.PaymentStatusAbandoned:
		ev.AbandonedAt = &at
	}
	r.byID[id] = ev
	return true, nil
}

func (r *memEventRepo) MarkFulfilled(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if ev.FulfilledAt == nil {
		ev.FulfilledAt = &at
		r.byID[id] = ev
	}
	return nil
}

func (r *memEventRepo) SetRefundedAmount(ctx context.Context, tx repository.Tx, id string, refunded int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	ev.RefundedAmount = refunded
	r.byID[id] = ev
	return nil
}

func (r *memEventRepo) MarkExpiredPending(ctx context.Context, tx repository.Tx, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, ev := range r.byID {
		if ev.PendingExpired(now) {
			at := now
			ev.Status = model.PaymentStatusAbandoned
			ev.AbandonedAt = &at
			r.byID[id] = ev
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memEventRepo) ListUnfulfilled(ctx context.Context, tx repository.Tx, completedBefore time.Time, limit int) ([]*model.PaymentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PaymentEvent
	for _, ev := range r.byID {
		if ev.Status == model.PaymentStatusCompleted && ev.FulfilledAt == nil && ev.CompletedAt != nil && ev.CompletedAt.Before(completedBefore) {
			c := ev
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(*out[j].CompletedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- Access grants ----

type memGrantRepo struct {
	mu      sync.Mutex
	grants  map[string]model.AccessGrant // user|product
	sources map[string]string            // event|product -> user

	// FailUpsert, when set, fails UpsertExtend with the returned error. The source
	// recorded in the same transaction is dropped, as a rollback would.
	FailUpsert func(req model.GrantRequest) error
	upserts    int
}

var _ repository.AccessGrantRepository = (*memGrantRepo)(nil)

func newMemGrantRepo() *memGrantRepo {
	return &memGrantRepo{grants: map[string]model.AccessGrant{}, sources: map[string]string{}}
}

func (r *memGrantRepo) FindByUserAndProduct(ctx context.Context, tx repository.Tx, userID, productID string) (*model.AccessGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[userID+"|"+productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &g, nil
}

func (r *memGrantRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.AccessGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AccessGrant
	for _, g := range r.grants {
		if g.UserID == userID {
			c := g
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (r *memGrantRepo) UpsertExtend(ctx context.Context, tx repository.Tx, id string, req model.GrantRequest, now time.Time) (*model.AccessGrant, bool, error) {
	if r.FailUpsert != nil {
		if err := r.FailUpsert(req); err != nil {
			r.mu.Lock()
			delete(r.sources, req.SourceEventID+"|"+req.ProductID)
			r.mu.Unlock()
			return nil, false, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	key := req.UserID + "|" + req.ProductID
	existing, ok := r.grants[key]
	if !ok {
		g := model.AccessGrant{
			ID:           id,
			UserID:       req.UserID,
			ProductID:    req.ProductID,
			GrantedAt:    now,
			DurationDays: req.DurationDays,
			ExpiresAt:    model.NextExpiry(nil, now, req.DurationDays),
			UpdatedAt:    now,
		}
		r.grants[key] = g
		return &g, true, nil
	}
	existing.ExpiresAt = model.NextExpiry(&existing, now, req.DurationDays)
	existing.DurationDays = req.DurationDays
	existing.UpdatedAt = now
	r.grants[key] = existing
	return &existing, false, nil
}

func (r *memGrantRepo) RecordSource(ctx context.Context, tx repository.Tx, eventID, productID, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := eventID + "|" + productID
	if _, ok := r.sources[key]; ok {
		return false, nil
	}
	r.sources[key] = userID
	return true, nil
}

func (r *memGrantRepo) upsertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts
}

// ---- Guest purchases ----

type memGuestRepo struct {
	mu   sync.Mutex
	rows []model.GuestPurchase
}

var _ repository.GuestPurchaseRepository = (*memGuestRepo)(nil)

func newMemGuestRepo() *memGuestRepo { return &memGuestRepo{} }

func (r *memGuestRepo) Insert(ctx context.Context, tx repository.Tx, gp *model.GuestPurchase) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Email == gp.Email && row.ProductID == gp.ProductID && row.PaymentEventID == gp.PaymentEventID {
			return false, nil
		}
	}
	r.rows = append(r.rows, *gp)
	return true, nil
}

func (r *memGuestRepo) FindByKey(ctx context.Context, tx repository.Tx, email, productID, eventID string) (*model.GuestPurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = model.NormalizeEmail(email)
	for _, row := range r.rows {
		if row.Email == email && row.ProductID == productID && row.PaymentEventID == eventID {
			c := row
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memGuestRepo) ListUnclaimedByEmail(ctx context.Context, tx repository.Tx, email string) ([]*model.GuestPurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.GuestPurchase
	for _, row := range r.rows {
		if model.SameEmail(row.Email, email) && !row.Claimed() {
			c := row
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memGuestRepo) MarkClaimed(ctx context.Context, tx repository.Tx, id, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == id {
			if r.rows[i].Claimed() {
				return false, nil
			}
			by := userID
			r.rows[i].ClaimedAt = &at
			r.rows[i].ClaimedBy = &by
			return true, nil
		}
	}
	return false, nil
}

func (r *memGuestRepo) ExistsForEmailAndProduct(ctx context.Context, tx repository.Tx, email, productID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if model.SameEmail(row.Email, email) && row.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memGuestRepo) all() []model.GuestPurchase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.GuestPurchase(nil), r.rows...)
}

// ---- One-time offers ----

type memOfferRepo struct {
	mu   sync.Mutex
	rows []model.OtoOffer

	// InsertFunc, when set, runs before the default insert; a non-nil error is returned as is.
	InsertFunc func(o *model.OtoOffer) error
}

var _ repository.OtoOfferRepository = (*memOfferRepo)(nil)

func newMemOfferRepo() *memOfferRepo { return &memOfferRepo{} }

func (r *memOfferRepo) Insert(ctx context.Context, tx repository.Tx, o *model.OtoOffer) (bool, error) {
	if r.InsertFunc != nil {
		if err := r.InsertFunc(o); err != nil {
			return false, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.SourceEventID == o.SourceEventID {
			return false, nil
		}
		if row.Code == o.Code {
			return false, domain.ErrAlreadyExists
		}
	}
	r.rows = append(r.rows, *o)
	return true, nil
}

func (r *memOfferRepo) FindBySourceEvent(ctx context.Context, tx repository.Tx, eventID string) (*model.OtoOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.SourceEventID == eventID {
			c := row
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memOfferRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.OtoOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Code == code {
			c := row
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memOfferRepo) Consume(ctx context.Context, tx repository.Tx, code, email, eventID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		o := &r.rows[i]
		if o.Code != code {
			continue
		}
		if eventID != "" && o.ConsumedByEventID == eventID {
			return true, nil
		}
		if o.CheckRedeemable(email, now) != nil {
			return false, nil
		}
		o.UsageCount++
		o.ConsumedByEventID = eventID
		if o.UsageCount >= o.UsageLimit {
			at := now
			o.ConsumedAt = &at
		}
		return true, nil
	}
	return false, nil
}

func (r *memOfferRepo) Release(ctx context.Context, tx repository.Tx, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		o := &r.rows[i]
		if eventID != "" && o.ConsumedByEventID == eventID && o.UsageCount > 0 {
			o.UsageCount--
			o.ConsumedAt = nil
			o.ConsumedByEventID = ""
			return true, nil
		}
	}
	return false, nil
}

func (r *memOfferRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// =============================
// Infra helpers for tests
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Clock ----

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
// It writes to io.Discard to prevent logs from cluttering test output.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// Fixture
// =============================

const (
	prodCourse = "p-course" // 30 days, offers prodVIP
	prodBump   = "p-workbook"
	prodVIP    = "p-vip" // unlimited
	prodOld    = "p-retired"
)

type fixture struct {
	users    *memUserRepo
	products *memProductRepo
	events   *memEventRepo
	grants   *memGrantRepo
	guests   *memGuestRepo
	offers   *memOfferRepo
	tm       *MockTxManager
	clock    *testClock

	user    *userUC
	access  *accessUC
	guest   *guestUC
	claim   *claimUC
	offer   *offerUC
	payment *paymentUC
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := newTestLogger()
	f := &fixture{
		users:    newMemUserRepo(),
		products: newMemProductRepo(),
		events:   newMemEventRepo(),
		grants:   newMemGrantRepo(),
		guests:   newMemGuestRepo(),
		offers:   newMemOfferRepo(),
		tm:       NewMockTxManager(),
		clock:    newTestClock(),
	}
	f.user = NewUserUseCase(f.users, f.tm, log)
	f.access = NewAccessUseCase(f.grants, f.users, f.products, f.tm, log)
	f.guest = NewGuestLedgerUseCase(f.guests, false, log)
	f.claim = NewClaimUseCase(f.guests, f.access, f.tm, log)
	f.offer = NewOfferUseCase(f.offers, f.products, f.grants, f.users, f.guests, f.access, f.guest, f.tm, 15, log)
	f.payment = NewPaymentUseCase(f.events, f.offer, f.tm, 30*time.Minute, log)

	f.user.now = f.clock.Now
	f.access.now = f.clock.Now
	f.guest.now = f.clock.Now
	f.claim.now = f.clock.Now
	f.offer.now = f.clock.Now
	f.payment.now = f.clock.Now

	ctx := context.Background()
	seed := []*model.Product{
		{ID: prodCourse, Name: "Course", Active: true, Price: 4900, Currency: "USD", DurationDays: model.Days(30),
			Oto: &model.OtoConfig{TargetProductID: prodVIP, Discount: model.Discount{Kind: model.DiscountPercent, Value: 50}}},
		{ID: prodBump, Name: "Workbook", Active: true, Price: 900, Currency: "USD", DurationDays: model.Days(365)},
		{ID: prodVIP, Name: "VIP", Active: true, Price: 10000, Currency: "USD"},
		{ID: prodOld, Name: "Retired", Active: false, Price: 100, Currency: "USD", DurationDays: model.Days(7)},
	}
	for _, p := range seed {
		if err := f.products.Save(ctx, repository.NoTX, p); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}
	return f
}

func (f *fixture) addUser(t *testing.T, id, email string) {
	t.Helper()
	if err := f.users.Save(context.Background(), repository.NoTX, &model.User{ID: id, Email: email, CreatedAt: f.clock.Now()}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

// checkout starts a pending checkout for productID.
func (f *fixture) checkout(t *testing.T, eventID string, owner model.OwnerID, email string, opts ...func(*CheckoutRequest)) *model.PaymentEvent {
	t.Helper()
	req := CheckoutRequest{EventID: eventID, ProductID: prodCourse, Owner: owner, CustomerEmail: email}
	for _, o := range opts {
		o(&req)
	}
	ev, err := f.payment.StartCheckout(context.Background(), req)
	if err != nil {
		t.Fatalf("StartCheckout(%s): %v", eventID, err)
	}
	return ev
}

// webhook completes ev as the provider would.
func (f *fixture) webhook(t *testing.T, ev *model.PaymentEvent) *CompletionResult {
	t.Helper()
	res, err := f.payment.CompletePayment(context.Background(), ev.ID, nil, &ProviderConfirmation{Amount: ev.Amount, Currency: ev.Currency})
	if err != nil {
		t.Fatalf("CompletePayment(%s): %v", ev.ID, err)
	}
	return res
}
