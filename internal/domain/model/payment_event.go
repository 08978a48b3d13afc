package model

import (
	"time"

	"commerce-access/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // checkout session created; awaiting provider outcome
	PaymentStatusCompleted PaymentStatus = "completed" // provider confirmed the payment
	PaymentStatusFailed    PaymentStatus = "failed"    // provider reported failure
	PaymentStatusAbandoned PaymentStatus = "abandoned" // pending past its expiry, set by the sweep
	PaymentStatusExpired   PaymentStatus = "expired"   // provider expired the session
)

// IsTerminal reports whether no further status transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusAbandoned, PaymentStatusExpired:
		return true
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s.IsTerminal()
}

// PaymentEvent is one payment attempt and its outcome. ID is the provider-issued identifier.
type PaymentEvent struct {
	ID             string
	ProductID      string
	Owner          OwnerID // declared owner; absent for guest checkouts
	CustomerEmail  string
	Amount         int64 // minor units
	Currency       string
	RefundedAmount int64
	Status         PaymentStatus
	Metadata       Metadata
	ExpiresAt      *time.Time // pending deadline
	CompletedAt    *time.Time
	AbandonedAt    *time.Time
	FulfilledAt    *time.Time // every grant / ledger write for the event succeeded
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewPendingPaymentEvent validates and constructs a pending event expiring after ttl.
func NewPendingPaymentEvent(id, productID string, owner OwnerID, email string, amount int64, currency string, meta Metadata, now time.Time, ttl time.Duration) (*PaymentEvent, error) {
	if id == "" || productID == "" || NormalizeEmail(email) == "" || amount < 0 || currency == "" || ttl <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	exp := now.Add(ttl)
	return &PaymentEvent{
		ID:            id,
		ProductID:     productID,
		Owner:         owner,
		CustomerEmail: NormalizeEmail(email),
		Amount:        amount,
		Currency:      currency,
		Status:        PaymentStatusPending,
		Metadata:      meta,
		ExpiresAt:     &exp,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// SameCheckout reports whether o describes the same purchase as e: same product,
// same declared owner and same customer.
func (e *PaymentEvent) SameCheckout(o *PaymentEvent) bool {
	return e != nil && o != nil &&
		e.ProductID == o.ProductID &&
		e.Owner == o.Owner &&
		SameEmail(e.CustomerEmail, o.CustomerEmail)
}

// PendingExpired reports whether a pending event is past its deadline at now.
func (e *PaymentEvent) PendingExpired(now time.Time) bool {
	return e.Status == PaymentStatusPending && e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// ApplyRefund records the provider's cumulative refunded total on a completed event.
// It reports whether the stored total changed; a lower total than already recorded
// or one above the paid amount is rejected.
func (e *PaymentEvent) ApplyRefund(total int64) (bool, error) {
	if e.Status != PaymentStatusCompleted {
		return false, domain.ErrInvalidTransition
	}
	if total <= 0 || total < e.RefundedAmount || total > e.Amount {
		return false, domain.ErrInvalidArgument
	}
	if total == e.RefundedAmount {
		return false, nil
	}
	e.RefundedAmount = total
	return true, nil
}
