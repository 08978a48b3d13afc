package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"commerce-access/internal/domain"
	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
)

// Fulfillment is the outcome of delivering one product of a payment event:
// either a grant or a guest ledger row.
type Fulfillment struct {
	ProductID string
	Grant     *model.AccessGrant
	Guest     *model.GuestPurchase
}

// fulfiller writes the grant or the guest ledger row for one product of an event.
type fulfiller struct {
	access    *accessUC
	guests    *guestUC
	guestRepo repository.GuestPurchaseRepository
	tm        repository.TransactionManager
	log       *zerolog.Logger
}

func (f *fulfiller) fulfillProduct(ctx context.Context, ev *model.PaymentEvent, d model.OwnershipDecision, productID string, amount int64) (*Fulfillment, error) {
	out := &Fulfillment{ProductID: productID}
	err := inSerializableTx(ctx, f.tm, f.log, "fulfill product", func(ctx context.Context, tx repository.Tx) error {
		out.Grant, out.Guest = nil, nil
		if !d.GrantTo.Present() {
			gp, err := f.guests.recordTx(ctx, tx, ev.CustomerEmail, productID, ev.ID, amount)
			out.Guest = gp
			return err
		}
		userID := d.GrantTo.String()
		if !ev.Owner.Present() {
			if err := f.settleGuestRow(ctx, tx, ev, productID, userID); err != nil {
				return err
			}
		}
		g, err := f.access.grantProductTx(ctx, tx, userID, productID, ev.ID)
		if errors.Is(err, domain.ErrAlreadyGranted) {
			err = nil
		}
		out.Grant = g
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// settleGuestRow marks the ledger row of a guest checkout claimed when the buyer
// verifies the payment while signed in, so a later claim run skips it.
func (f *fulfiller) settleGuestRow(ctx context.Context, tx repository.Tx, ev *model.PaymentEvent, productID, userID string) error {
	gp, err := f.guestRepo.FindByKey(ctx, tx, ev.CustomerEmail, productID, ev.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if gp.Claimed() {
		return nil
	}
	_, err = f.guestRepo.MarkClaimed(ctx, tx, gp.ID, userID, f.access.now())
	return err
}
