package repository

import (
	"context"
	"time"

	"commerce-access/internal/domain/model"
)

// -----------------------------
// Guest purchases
// -----------------------------

type GuestPurchaseRepository interface {
	// Insert adds a ledger row; it reports false when (email, product, event) already exists.
	Insert(ctx context.Context, tx Tx, gp *model.GuestPurchase) (bool, error)
	FindByKey(ctx context.Context, tx Tx, email, productID, eventID string) (*model.GuestPurchase, error)
	ListUnclaimedByEmail(ctx context.Context, tx Tx, email string) ([]*model.GuestPurchase, error)
	// MarkClaimed sets claimed_at/claimed_by when still unclaimed and reports whether it did.
	MarkClaimed(ctx context.Context, tx Tx, id, userID string, at time.Time) (bool, error)
	// ExistsForEmailAndProduct reports whether the email bought the product as a guest.
	ExistsForEmailAndProduct(ctx context.Context, tx Tx, email, productID string) (bool, error)
}
