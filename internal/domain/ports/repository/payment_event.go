package repository

import (
	"context"
	"time"

	"commerce-access/internal/domain/model"
)

// -----------------------------
// Payment events
// -----------------------------

type PaymentEventRepository interface {
	// Create inserts a new event. Returns domain.ErrAlreadyExists when the provider id is taken.
	Create(ctx context.Context, tx Tx, ev *model.PaymentEvent) error
	// FindByID loads an event; inside a transaction the row is locked.
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentEvent, error)
	// TransitionFromPending moves a pending event to a terminal status. It reports
	// false when the event was no longer pending (compare-and-set).
	TransitionFromPending(ctx context.Context, tx Tx, id string, to model.PaymentStatus, at time.Time) (bool, error)
	// MarkFulfilled stamps fulfilled_at once, leaving an existing stamp untouched.
	MarkFulfilled(ctx context.Context, tx Tx, id string, at time.Time) error
	// SetRefundedAmount stores the cumulative refunded amount of a completed event.
	SetRefundedAmount(ctx context.Context, tx Tx, id string, refunded int64) error
	// MarkExpiredPending moves every pending event whose expiry is before now to abandoned.
	// It returns the ids it moved.
	MarkExpiredPending(ctx context.Context, tx Tx, now time.Time) ([]string, error)
	// ListUnfulfilled returns completed events lacking fulfilled_at that completed before the cutoff.
	ListUnfulfilled(ctx context.Context, tx Tx, completedBefore time.Time, limit int) ([]*model.PaymentEvent, error)
}
