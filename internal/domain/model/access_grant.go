package model

import (
	"time"

	"commerce-access/internal/domain"
)

// MaxDurationDays bounds a grant duration to 1000 years so every expiry stays
// within the store's timestamp range.
const MaxDurationDays = 365_000

// AccessGrant is a user's right to use a product. At most one per (user, product).
// A nil ExpiresAt means unlimited access.
type AccessGrant struct {
	ID           string
	UserID       string
	ProductID    string
	GrantedAt    time.Time
	DurationDays *int
	ExpiresAt    *time.Time
	UpdatedAt    time.Time
}

// ValidateDuration rejects non-positive durations and durations above MaxDurationDays.
// nil is unlimited and always valid.
func ValidateDuration(days *int) error {
	if days != nil && (*days <= 0 || *days > MaxDurationDays) {
		return domain.ErrInvalidDuration
	}
	return nil
}

// NextExpiry computes the expiry after granting days at now.
// For a fresh grant (existing == nil): now + days.
// For an extension: max(current, now) + days.
// Unlimited on either side wins: a nil current expiry on an existing grant, or nil days.
//
// The Postgres upsert mirrors this expression; keep both in sync.
func NextExpiry(existing *AccessGrant, now time.Time, days *int) *time.Time {
	if days == nil {
		return nil
	}
	if existing == nil {
		t := now.AddDate(0, 0, *days)
		return &t
	}
	if existing.ExpiresAt == nil {
		return nil
	}
	base := *existing.ExpiresAt
	if now.After(base) {
		base = now
	}
	t := base.AddDate(0, 0, *days)
	return &t
}

// Active reports whether the grant gives access at now.
func (g *AccessGrant) Active(now time.Time) bool {
	if g == nil {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// Unlimited reports whether the grant never expires.
func (g *AccessGrant) Unlimited() bool { return g != nil && g.ExpiresAt == nil }

// GrantRequest is the input of the access grant primitive.
// SourceEventID keys idempotency: one payment event contributes to a product grant once.
type GrantRequest struct {
	UserID        string
	ProductID     string
	DurationDays  *int
	SourceEventID string
}

func (r GrantRequest) Validate() error {
	if r.UserID == "" || r.ProductID == "" || r.SourceEventID == "" {
		return domain.ErrInvalidArgument
	}
	return ValidateDuration(r.DurationDays)
}

// Days is a helper for optional durations.
func Days(n int) *int { return &n }
