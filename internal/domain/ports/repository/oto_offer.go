package repository

import (
	"context"
	"time"

	"commerce-access/internal/domain/model"
)

// -----------------------------
// One-time offers
// -----------------------------

type OtoOfferRepository interface {
	// Insert stores the offer. It reports false when an offer for the same source
	// event already exists, and returns domain.ErrAlreadyExists on a code collision.
	Insert(ctx context.Context, tx Tx, o *model.OtoOffer) (bool, error)
	FindBySourceEvent(ctx context.Context, tx Tx, eventID string) (*model.OtoOffer, error)
	FindByCode(ctx context.Context, tx Tx, code string) (*model.OtoOffer, error)
	// Consume records a use of code held by eventID when the offer is bound to email,
	// unexpired at now and below its usage limit. A use already held by eventID is
	// reported as recorded. It reports whether eventID holds a use afterwards.
	Consume(ctx context.Context, tx Tx, code, email, eventID string, now time.Time) (bool, error)
	// Release gives back the use held by eventID, if any.
	Release(ctx context.Context, tx Tx, eventID string) (bool, error)
}
