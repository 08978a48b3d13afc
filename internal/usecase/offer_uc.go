package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"commerce-access/internal/domain"
	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
	"commerce-access/internal/infra/logging"
	"commerce-access/internal/infra/metrics"
)

// Compile-time check
var _ OfferUseCase = (*offerUC)(nil)

const maxOtoCodeAttempts = 3

// OfferUseCase handles the order bump and one-time offers attached to a purchase.
type OfferUseCase interface {
	// ApplyBumpGrant delivers the bump product of ev, if any, independently of the main product.
	ApplyBumpGrant(ctx context.Context, ev *model.PaymentEvent, caller *model.Caller) (*Fulfillment, error)
	// GenerateOtoOffer creates the one offer of a completed event, or returns the existing one.
	// It returns nil when the product has no offer or the customer already owns the target.
	GenerateOtoOffer(ctx context.Context, ev *model.PaymentEvent, grantTo model.OwnerID) (*model.OtoOffer, error)
	// ValidateOtoOffer checks that code can be redeemed by email; productID, when not
	// empty, must be the offer target.
	ValidateOtoOffer(ctx context.Context, code, email, productID string) (*model.OtoOffer, error)
	// RedeemOtoOffer makes eventID hold one use of code. Repeating it for the same
	// event is a no-op.
	RedeemOtoOffer(ctx context.Context, code, email, eventID string) (*model.OtoOffer, error)
}

type offerUC struct {
	offers        repository.OtoOfferRepository
	products      repository.ProductRepository
	grants        repository.AccessGrantRepository
	users         repository.UserRepository
	guests        repository.GuestPurchaseRepository
	fulfill       *fulfiller
	defaultWindow int
	log           *zerolog.Logger
	now           func() time.Time
}

// NewOfferUseCase wires the offer flows. defaultWindowMins applies to products whose
// offer config leaves the window unset.
func NewOfferUseCase(
	offers repository.OtoOfferRepository,
	products repository.ProductRepository,
	grants repository.AccessGrantRepository,
	users repository.UserRepository,
	guests repository.GuestPurchaseRepository,
	access *accessUC,
	guestLedger *guestUC,
	tm repository.TransactionManager,
	defaultWindowMins int,
	logger *zerolog.Logger,
) *offerUC {
	return &offerUC{
		offers:   offers,
		products: products,
		grants:   grants,
		users:    users,
		guests:   guests,
		fulfill: &fulfiller{
			access:    access,
			guests:    guestLedger,
			guestRepo: guests,
			tm:        tm,
			log:       logger,
		},
		defaultWindow: defaultWindowMins,
		log:           logger,
		now:           time.Now,
	}
}

func (u *offerUC) ApplyBumpGrant(ctx context.Context, ev *model.PaymentEvent, caller *model.Caller) (*Fulfillment, error) {
	defer logging.TraceDuration(u.log, "OfferUC.ApplyBumpGrant")()

	bump, ok := ev.Metadata.Bump()
	if !ok {
		return nil, nil
	}
	d := model.ResolveOwnership(ev, caller)
	if !d.Allowed {
		return nil, d.Reason
	}
	f, err := u.fulfill.fulfillProduct(ctx, ev, d, bump.ProductID, bump.Amount)
	if err != nil {
		return nil, fmt.Errorf("bump %s: %w", bump.ProductID, err)
	}
	return f, nil
}

func (u *offerUC) GenerateOtoOffer(ctx context.Context, ev *model.PaymentEvent, grantTo model.OwnerID) (*model.OtoOffer, error) {
	defer logging.TraceDuration(u.log, "OfferUC.GenerateOtoOffer")()

	p, err := u.products.FindByID(ctx, repository.NoTX, ev.ProductID)
	if err != nil {
		return nil, err
	}
	if p.Oto == nil || p.Oto.TargetProductID == "" {
		return nil, nil
	}

	existing, err := u.offers.FindBySourceEvent(ctx, repository.NoTX, ev.ID)
	if err == nil {
		metrics.IncOtoOffer("existing")
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	owned, err := u.customerOwns(ctx, grantTo, ev.CustomerEmail, p.Oto.TargetProductID)
	if err != nil {
		return nil, err
	}
	if owned {
		metrics.IncOtoOffer("skipped_owned")
		u.log.Debug().Str("payment_event_id", ev.ID).Str("target_product_id", p.Oto.TargetProductID).Msg("customer already owns offer target")
		return nil, nil
	}

	window := p.Oto.WindowMinutes
	if window <= 0 {
		window = u.defaultWindow
	}
	now := u.now()
	for attempt := 0; attempt < maxOtoCodeAttempts; attempt++ {
		code, err := generateOtoCode()
		if err != nil {
			return nil, fmt.Errorf("generate oto code: %w", err)
		}
		offer := &model.OtoOffer{
			ID:              ulid.Make().String(),
			Code:            code,
			Email:           ev.CustomerEmail,
			SourceEventID:   ev.ID,
			SourceProductID: ev.ProductID,
			TargetProductID: p.Oto.TargetProductID,
			Discount:        p.Oto.Discount,
			ExpiresAt:       now.Add(model.ClampOtoWindow(window)),
			UsageLimit:      1,
			CreatedAt:       now,
		}
		inserted, err := u.offers.Insert(ctx, repository.NoTX, offer)
		if errors.Is(err, domain.ErrAlreadyExists) {
			metrics.IncOtoOffer("collision")
			continue
		}
		if err != nil {
			return nil, err
		}
		if !inserted {
			metrics.IncOtoOffer("existing")
			return u.offers.FindBySourceEvent(ctx, repository.NoTX, ev.ID)
		}
		metrics.IncOtoOffer("generated")
		u.log.Info().
			Str("offer_id", offer.ID).
			Str("payment_event_id", ev.ID).
			Str("target_product_id", offer.TargetProductID).
			Time("expires_at", offer.ExpiresAt).
			Msg("one-time offer generated")
		return offer, nil
	}
	return nil, fmt.Errorf("generate oto offer: no free code after %d attempts: %w", maxOtoCodeAttempts, domain.ErrInternal)
}

// customerOwns reports whether the buyer already has productID, either as an active
// grant on their account or as a guest purchase under their email.
func (u *offerUC) customerOwns(ctx context.Context, grantTo model.OwnerID, email, productID string) (bool, error) {
	userID := grantTo.String()
	if !grantTo.Present() {
		usr, err := u.users.FindByEmail(ctx, repository.NoTX, email)
		switch {
		case err == nil:
			userID = usr.ID
		case !errors.Is(err, domain.ErrNotFound):
			return false, err
		}
	}
	if userID != "" {
		g, err := u.grants.FindByUserAndProduct(ctx, repository.NoTX, userID, productID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return false, err
		}
		if g.Active(u.now()) {
			return true, nil
		}
	}
	return u.guests.ExistsForEmailAndProduct(ctx, repository.NoTX, model.NormalizeEmail(email), productID)
}

func (u *offerUC) ValidateOtoOffer(ctx context.Context, code, email, productID string) (*model.OtoOffer, error) {
	defer logging.TraceDuration(u.log, "OfferUC.ValidateOtoOffer")()

	o, err := u.offers.FindByCode(ctx, repository.NoTX, normalizeCode(code))
	if err != nil {
		return nil, err
	}
	if err := o.CheckRedeemable(email, u.now()); err != nil {
		return nil, err
	}
	if productID != "" && productID != o.TargetProductID {
		return nil, fmt.Errorf("offer %s targets another product: %w", o.Code, domain.ErrInvalidArgument)
	}
	return o, nil
}

func (u *offerUC) RedeemOtoOffer(ctx context.Context, code, email, eventID string) (*model.OtoOffer, error) {
	defer logging.TraceDuration(u.log, "OfferUC.RedeemOtoOffer")()
	return u.reserve(ctx, repository.NoTX, normalizeCode(code), email, eventID, "redeemed")
}

// reserve records the use of code held by eventID inside tx. label names the
// metric outcome of a recorded use.
func (u *offerUC) reserve(ctx context.Context, tx repository.Tx, code, email, eventID, label string) (*model.OtoOffer, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := u.now()
	ok, err := u.offers.Consume(ctx, tx, code, model.NormalizeEmail(email), eventID, now)
	if err != nil {
		return nil, err
	}
	o, err := u.offers.FindByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.IncOtoOffer("rejected")
		if reason := o.CheckRedeemable(email, now); reason != nil {
			return nil, reason
		}
		// lost a race for the last use
		return nil, domain.ErrUsageExhausted
	}
	metrics.IncOtoOffer(label)
	return o, nil
}

// release gives back the offer use held by eventID, if any.
func (u *offerUC) release(ctx context.Context, tx repository.Tx, eventID string) (bool, error) {
	ok, err := u.offers.Release(ctx, tx, eventID)
	if err != nil {
		return false, err
	}
	if ok {
		metrics.IncOtoOffer("released")
	}
	return ok, nil
}

func normalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }
