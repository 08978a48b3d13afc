package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
	"commerce-access/internal/infra/logging"
	"commerce-access/internal/infra/metrics"
)

// Compile-time check
var _ GuestLedgerUseCase = (*guestUC)(nil)

// GuestLedgerUseCase records purchases that could not be bound to a user yet.
type GuestLedgerUseCase interface {
	RecordGuestPurchase(ctx context.Context, email, productID, eventID string, amount int64) (*model.GuestPurchase, error)
	ListUnclaimed(ctx context.Context, email string) ([]*model.GuestPurchase, error)
}

type guestUC struct {
	guests repository.GuestPurchaseRepository
	log    *zerolog.Logger
	now    func() time.Time
	// dev logs customer addresses in clear
	dev bool
}

func NewGuestLedgerUseCase(guests repository.GuestPurchaseRepository, dev bool, logger *zerolog.Logger) *guestUC {
	return &guestUC{guests: guests, log: logger, now: time.Now, dev: dev}
}

func (u *guestUC) RecordGuestPurchase(ctx context.Context, email, productID, eventID string, amount int64) (*model.GuestPurchase, error) {
	defer logging.TraceDuration(u.log, "GuestUC.RecordGuestPurchase")()
	return u.recordTx(ctx, repository.NoTX, email, productID, eventID, amount)
}

// recordTx inserts the ledger row or returns the one already stored for the
// same (email, product, event).
func (u *guestUC) recordTx(ctx context.Context, tx repository.Tx, email, productID, eventID string, amount int64) (*model.GuestPurchase, error) {
	gp, err := model.NewGuestPurchase(uuid.NewString(), email, productID, eventID, amount, u.now())
	if err != nil {
		return nil, err
	}
	inserted, err := u.guests.Insert(ctx, tx, gp)
	if err != nil {
		return nil, err
	}
	if !inserted {
		metrics.IncGuestPurchase("duplicate")
		return u.guests.FindByKey(ctx, tx, gp.Email, productID, eventID)
	}
	metrics.IncGuestPurchase("recorded")
	u.log.Info().
		Str("product_id", productID).
		Str("payment_event_id", eventID).
		Str("email", logging.RedactEmail(gp.Email, u.dev)).
		Msg("guest purchase recorded")
	return gp, nil
}

func (u *guestUC) ListUnclaimed(ctx context.Context, email string) ([]*model.GuestPurchase, error) {
	defer logging.TraceDuration(u.log, "GuestUC.ListUnclaimed")()
	return u.guests.ListUnclaimedByEmail(ctx, repository.NoTX, model.NormalizeEmail(email))
}
