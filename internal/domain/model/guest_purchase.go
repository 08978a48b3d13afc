package model

import (
	"time"

	"commerce-access/internal/domain"
)

// GuestPurchase is a completed payment with no authenticated owner, waiting to be
// claimed by the account that registers with the same email.
type GuestPurchase struct {
	ID             string
	Email          string // normalized
	ProductID      string
	PaymentEventID string
	Amount         int64
	CreatedAt      time.Time
	ClaimedAt      *time.Time
	ClaimedBy      *string
}

func NewGuestPurchase(id, email, productID, paymentEventID string, amount int64, now time.Time) (*GuestPurchase, error) {
	email = NormalizeEmail(email)
	if id == "" || email == "" || productID == "" || paymentEventID == "" || amount < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &GuestPurchase{
		ID:             id,
		Email:          email,
		ProductID:      productID,
		PaymentEventID: paymentEventID,
		Amount:         amount,
		CreatedAt:      now,
	}, nil
}

func (g *GuestPurchase) Claimed() bool { return g.ClaimedAt != nil }
