package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"commerce-access/internal/domain"
	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
	"commerce-access/internal/infra/logging"
	"commerce-access/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// CheckoutRequest starts a provider checkout. Owner must come from the authenticated
// caller only, never from the request body.
type CheckoutRequest struct {
	EventID       string
	ProductID     string
	Owner         model.OwnerID
	CustomerEmail string
	BumpProductID string
	CouponCode    string
	TermsAccepted bool
}

// ProviderConfirmation is the provider's statement that an event was paid.
type ProviderConfirmation struct {
	Amount   int64
	Currency string
}

// CompletionResult is everything a completion delivered.
type CompletionResult struct {
	Event *model.PaymentEvent
	Main  *Fulfillment
	Bump  *Fulfillment
	Offer *model.OtoOffer
}

type PaymentUseCase interface {
	StartCheckout(ctx context.Context, req CheckoutRequest) (*model.PaymentEvent, error)
	// CompletePayment moves a pending event to completed when confirm is set and runs
	// fulfillment. Completed events re-run fulfillment idempotently; a pending event
	// without provider confirmation returns domain.ErrPaymentPending.
	CompletePayment(ctx context.Context, eventID string, caller *model.Caller, confirm *ProviderConfirmation) (*CompletionResult, error)
	FailPayment(ctx context.Context, eventID string) (*model.PaymentEvent, error)
	ExpirePayment(ctx context.Context, eventID string) (*model.PaymentEvent, error)
	// RecordRefund stores the provider's cumulative refunded total.
	RecordRefund(ctx context.Context, eventID string, total int64) (*model.PaymentEvent, error)
	// MarkExpiredPending abandons every pending event past its expiry.
	MarkExpiredPending(ctx context.Context) (int, error)
	// ListUnfulfilled returns completed events without a fulfillment stamp older than staleAfter.
	ListUnfulfilled(ctx context.Context, staleAfter time.Duration, limit int) ([]*model.PaymentEvent, error)
	Get(ctx context.Context, eventID string) (*model.PaymentEvent, error)
}

type paymentUC struct {
	events     repository.PaymentEventRepository
	offers     *offerUC
	fulfill    *fulfiller
	tm         repository.TransactionManager
	pendingTTL time.Duration
	log        *zerolog.Logger
	now        func() time.Time
}

func NewPaymentUseCase(
	events repository.PaymentEventRepository,
	offers *offerUC,
	tm repository.TransactionManager,
	pendingTTL time.Duration,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		events:     events,
		offers:     offers,
		fulfill:    offers.fulfill,
		tm:         tm,
		pendingTTL: pendingTTL,
		log:        logger,
		now:        time.Now,
	}
}

func (u *paymentUC) StartCheckout(ctx context.Context, req CheckoutRequest) (*model.PaymentEvent, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.StartCheckout")()

	if strings.TrimSpace(req.EventID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	access := u.fulfill.access
	p, err := access.activeProduct(ctx, repository.NoTX, req.ProductID)
	if err != nil {
		return nil, err
	}
	now := u.now()
	amount := p.Price
	var meta model.Metadata

	if code := normalizeCode(req.CouponCode); code != "" {
		c := model.CouponMeta{Code: code}
		if c.IsOto() {
			o, err := u.offers.ValidateOtoOffer(ctx, code, req.CustomerEmail, p.ID)
			if err != nil {
				return nil, err
			}
			amount = o.Discount.Apply(amount)
		}
		meta = append(meta, c)
	}
	if req.BumpProductID != "" {
		if req.BumpProductID == p.ID {
			return nil, fmt.Errorf("bump must differ from the main product: %w", domain.ErrInvalidArgument)
		}
		bp, err := access.activeProduct(ctx, repository.NoTX, req.BumpProductID)
		if err != nil {
			return nil, err
		}
		meta = append(meta, model.BumpMeta{ProductID: bp.ID, Amount: bp.Price})
		amount += bp.Price
	}
	if req.TermsAccepted {
		meta = append(meta, model.TermsMeta{Accepted: true, AcceptedAt: &now})
	}

	ev, err := model.NewPendingPaymentEvent(req.EventID, p.ID, req.Owner, req.CustomerEmail, amount, p.Currency, meta, now, u.pendingTTL)
	if err != nil {
		return nil, err
	}
	coupon, hasOto := ev.Metadata.Coupon()
	hasOto = hasOto && coupon.IsOto()

	// The offer use is held by the event from checkout on so two open checkouts
	// cannot both spend it.
	var existing *model.PaymentEvent
	err = inSerializableTx(ctx, u.tm, u.log, "start checkout", func(ctx context.Context, tx repository.Tx) error {
		existing = nil
		prev, err := u.events.FindByID(ctx, tx, ev.ID)
		switch {
		case err == nil:
			existing = prev
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		if hasOto {
			if _, err := u.offers.reserve(ctx, tx, coupon.Code, ev.CustomerEmail, ev.ID, "reserved"); err != nil {
				return err
			}
		}
		return u.events.Create(ctx, tx, ev)
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		existing, err = u.events.FindByID(ctx, repository.NoTX, ev.ID)
	}
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.SameCheckout(ev) {
			u.log.Warn().
				Str("payment_event_id", ev.ID).
				Str("product_id", ev.ProductID).
				Str("stored_product_id", existing.ProductID).
				Msg("checkout id reused for another purchase")
			return nil, fmt.Errorf("payment %s belongs to another checkout: %w", ev.ID, domain.ErrAlreadyExists)
		}
		return existing, nil
	}
	metrics.IncPayment(string(model.PaymentStatusPending))
	u.log.Info().
		Str("payment_event_id", ev.ID).
		Str("product_id", ev.ProductID).
		Bool("has_owner", ev.Owner.Present()).
		Int64("amount", ev.Amount).
		Msg("checkout started")
	return ev, nil
}

func (u *paymentUC) CompletePayment(ctx context.Context, eventID string, caller *model.Caller, confirm *ProviderConfirmation) (*CompletionResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.CompletePayment")()

	ctx = logging.WithEventID(ctx, eventID)
	log := logging.With(ctx, u.log)

	ev, err := u.events.FindByID(ctx, repository.NoTX, eventID)
	if err != nil {
		return nil, err
	}
	d := model.ResolveOwnership(ev, caller)
	if !d.Allowed {
		u.denied(log, ev, caller, d.Reason)
		return nil, d.Reason
	}

	switch ev.Status {
	case model.PaymentStatusPending:
		if confirm == nil {
			return &CompletionResult{Event: ev}, domain.ErrPaymentPending
		}
		if confirm.Amount != ev.Amount || (confirm.Currency != "" && !strings.EqualFold(confirm.Currency, ev.Currency)) {
			log.Warn().
				Int64("expected", ev.Amount).
				Int64("got", confirm.Amount).
				Str("currency", confirm.Currency).
				Msg("provider amount mismatch")
			return nil, domain.ErrAmountMismatch
		}
		now := u.now()
		ok, err := u.events.TransitionFromPending(ctx, repository.NoTX, ev.ID, model.PaymentStatusCompleted, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			// another delivery moved it first
			if ev, err = u.events.FindByID(ctx, repository.NoTX, eventID); err != nil {
				return nil, err
			}
			if ev.Status != model.PaymentStatusCompleted {
				u.lateCompletion(log, ev, confirm)
				return nil, fmt.Errorf("complete %s (%s): %w", ev.ID, ev.Status, domain.ErrInvalidTransition)
			}
		} else {
			ev.Status = model.PaymentStatusCompleted
			ev.CompletedAt = &now
			metrics.IncPayment(string(model.PaymentStatusCompleted))
			metrics.AddPaymentRevenue(ev.Currency, ev.Amount)
			log.Info().Int64("amount", ev.Amount).Str("currency", ev.Currency).Msg("payment completed")
		}
	case model.PaymentStatusCompleted:
	default:
		if confirm != nil {
			u.lateCompletion(log, ev, confirm)
		}
		return nil, fmt.Errorf("complete %s (%s): %w", ev.ID, ev.Status, domain.ErrInvalidTransition)
	}

	return u.fulfillEvent(ctx, log, ev, caller, d)
}

// fulfillEvent delivers the main product, the bump and the offer of a completed
// event. The fulfillment stamp is set only when main and bump both succeeded so the
// reconciler retries the rest.
func (u *paymentUC) fulfillEvent(ctx context.Context, log *zerolog.Logger, ev *model.PaymentEvent, caller *model.Caller, d model.OwnershipDecision) (*CompletionResult, error) {
	res := &CompletionResult{Event: ev}

	mainAmount := ev.Amount
	if bump, ok := ev.Metadata.Bump(); ok {
		mainAmount -= bump.Amount
		if mainAmount < 0 {
			mainAmount = 0
		}
	}
	main, mainErr := u.fulfill.fulfillProduct(ctx, ev, d, ev.ProductID, mainAmount)
	if mainErr != nil {
		log.Error().Err(mainErr).Str("product_id", ev.ProductID).Msg("main product fulfillment failed")
	}
	res.Main = main

	bump, bumpErr := u.offers.ApplyBumpGrant(ctx, ev, caller)
	if bumpErr != nil {
		log.Error().Err(bumpErr).Msg("bump fulfillment failed")
	}
	res.Bump = bump

	if mainErr == nil {
		offer, err := u.offers.GenerateOtoOffer(ctx, ev, d.GrantTo)
		if err != nil {
			log.Warn().Err(err).Msg("one-time offer generation failed")
		}
		res.Offer = offer
	}

	// The use was taken at checkout; this only confirms it.
	if c, ok := ev.Metadata.Coupon(); ok && c.IsOto() && ev.FulfilledAt == nil {
		if _, err := u.offers.RedeemOtoOffer(ctx, c.Code, ev.CustomerEmail, ev.ID); err != nil {
			log.Error().Err(err).Str("code", c.Code).Msg("paid with a one-time offer the event does not hold")
		}
	}

	if err := errors.Join(mainErr, bumpErr); err != nil {
		return res, err
	}
	if ev.FulfilledAt == nil {
		now := u.now()
		if err := u.events.MarkFulfilled(ctx, repository.NoTX, ev.ID, now); err != nil {
			return res, err
		}
		ev.FulfilledAt = &now
	}
	return res, nil
}

// lateCompletion reports money the provider took for an event that already left
// pending. Nothing is granted; an operator has to refund or fulfil by hand.
func (u *paymentUC) lateCompletion(log *zerolog.Logger, ev *model.PaymentEvent, confirm *ProviderConfirmation) {
	metrics.IncLateCompletion(string(ev.Status))
	log.Error().
		Bool("late_completion", true).
		Str("status", string(ev.Status)).
		Int64("amount", confirm.Amount).
		Str("currency", confirm.Currency).
		Msg("provider confirmed a payment that is no longer pending")
}

func (u *paymentUC) denied(log *zerolog.Logger, ev *model.PaymentEvent, caller *model.Caller, reason error) {
	label := "email_mismatch"
	if errors.Is(reason, domain.ErrOwnerMismatch) {
		label = "owner_mismatch"
	}
	metrics.IncOwnershipDenied(label)
	e := log.Warn().Bool("security", true).Str("reason", label).Bool("has_owner", ev.Owner.Present())
	if caller != nil {
		e = e.Str("caller_id", caller.ID)
	}
	e.Msg("fulfillment rejected by ownership check")
}

func (u *paymentUC) FailPayment(ctx context.Context, eventID string) (*model.PaymentEvent, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.FailPayment")()
	return u.transition(ctx, eventID, model.PaymentStatusFailed)
}

func (u *paymentUC) ExpirePayment(ctx context.Context, eventID string) (*model.PaymentEvent, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.ExpirePayment")()
	return u.transition(ctx, eventID, model.PaymentStatusExpired)
}

// transition moves a pending event to a terminal status and gives back the offer
// use it held. Repeating the same transition is a no-op; any other terminal status
// is rejected.
func (u *paymentUC) transition(ctx context.Context, eventID string, to model.PaymentStatus) (*model.PaymentEvent, error) {
	var moved, released bool
	err := inSerializableTx(ctx, u.tm, u.log, "payment "+string(to), func(ctx context.Context, tx repository.Tx) error {
		var err error
		moved, released = false, false
		if moved, err = u.events.TransitionFromPending(ctx, tx, eventID, to, u.now()); err != nil || !moved {
			return err
		}
		released, err = u.offers.release(ctx, tx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	ev, err := u.events.FindByID(ctx, repository.NoTX, eventID)
	if err != nil {
		return nil, err
	}
	if !moved && ev.Status != to {
		return ev, fmt.Errorf("%s %s (%s): %w", to, ev.ID, ev.Status, domain.ErrInvalidTransition)
	}
	if moved {
		metrics.IncPayment(string(to))
		u.log.Info().
			Str("payment_event_id", eventID).
			Str("status", string(to)).
			Bool("offer_released", released).
			Msg("payment transitioned")
	}
	return ev, nil
}

func (u *paymentUC) RecordRefund(ctx context.Context, eventID string, total int64) (*model.PaymentEvent, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.RecordRefund")()

	var (
		ev    *model.PaymentEvent
		delta int64
	)
	err := inSerializableTx(ctx, u.tm, u.log, "record refund", func(ctx context.Context, tx repository.Tx) error {
		e, err := u.events.FindByID(ctx, tx, eventID)
		if err != nil {
			return err
		}
		before := e.RefundedAmount
		changed, err := e.ApplyRefund(total)
		if err != nil {
			return err
		}
		ev, delta = e, 0
		if !changed {
			return nil
		}
		delta = e.RefundedAmount - before
		return u.events.SetRefundedAmount(ctx, tx, e.ID, e.RefundedAmount)
	})
	if err != nil {
		return nil, err
	}
	if delta > 0 {
		metrics.AddPaymentRefund(ev.Currency, delta)
		u.log.Info().Str("payment_event_id", ev.ID).Int64("refunded_total", ev.RefundedAmount).Msg("refund recorded")
	}
	return ev, nil
}

func (u *paymentUC) MarkExpiredPending(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.MarkExpiredPending")()

	var ids []string
	released := 0
	err := inSerializableTx(ctx, u.tm, u.log, "abandon expired", func(ctx context.Context, tx repository.Tx) error {
		var err error
		released = 0
		if ids, err = u.events.MarkExpiredPending(ctx, tx, u.now()); err != nil {
			return err
		}
		for _, id := range ids {
			ok, err := u.offers.release(ctx, tx, id)
			if err != nil {
				return err
			}
			if ok {
				released++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	n := len(ids)
	metrics.AddPayments(string(model.PaymentStatusAbandoned), n)
	if n > 0 {
		u.log.Info().Int("count", n).Int("offers_released", released).Msg("abandoned expired pending payments")
	}
	return n, nil
}

func (u *paymentUC) ListUnfulfilled(ctx context.Context, staleAfter time.Duration, limit int) ([]*model.PaymentEvent, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.ListUnfulfilled")()
	return u.events.ListUnfulfilled(ctx, repository.NoTX, u.now().Add(-staleAfter), limit)
}

func (u *paymentUC) Get(ctx context.Context, eventID string) (*model.PaymentEvent, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Get")()
	return u.events.FindByID(ctx, repository.NoTX, eventID)
}
