package model

import (
	"time"

	"commerce-access/internal/domain"
)

const (
	OtoCodePrefix        = "OTO-"
	DefaultOtoWindowMins = 15
	MaxOtoWindowMins     = 1440
)

type DiscountKind string

const (
	DiscountPercent DiscountKind = "percent" // Value in whole percent, 1..100
	DiscountFixed   DiscountKind = "fixed"   // Value in minor units
)

type Discount struct {
	Kind  DiscountKind `json:"kind"`
	Value int64        `json:"value"`
}

// Apply returns the discounted price, never below zero.
func (d Discount) Apply(price int64) int64 {
	var out int64
	switch d.Kind {
	case DiscountPercent:
		v := d.Value
		if v > 100 {
			v = 100
		}
		out = price - price*v/100
	case DiscountFixed:
		out = price - d.Value
	default:
		out = price
	}
	if out < 0 {
		return 0
	}
	return out
}

// OtoOffer is a single-use, email-bound, short-lived coupon created after a purchase.
// Expired or consumed offers are kept for audit.
type OtoOffer struct {
	ID                string
	Code              string
	Email             string // normalized
	SourceEventID     string // one offer per source payment event
	SourceProductID   string
	TargetProductID   string
	Discount          Discount
	ExpiresAt         time.Time
	UsageLimit        int
	UsageCount        int
	ConsumedAt        *time.Time
	// ConsumedByEventID is the checkout holding the use, empty while unused.
	ConsumedByEventID string
	CreatedAt         time.Time
}

// ClampOtoWindow applies the default (15) and maximum (1440) window in minutes.
func ClampOtoWindow(mins int) time.Duration {
	if mins <= 0 {
		mins = DefaultOtoWindowMins
	}
	if mins > MaxOtoWindowMins {
		mins = MaxOtoWindowMins
	}
	return time.Duration(mins) * time.Minute
}

// CheckRedeemable reports why the offer cannot be redeemed by email at now, or nil.
// Expiry is checked before usage so a consumed-and-expired offer reads as expired.
func (o *OtoOffer) CheckRedeemable(email string, now time.Time) error {
	if !SameEmail(o.Email, email) {
		return domain.ErrEmailMismatch
	}
	if !now.Before(o.ExpiresAt) {
		return domain.ErrExpiredOffer
	}
	if o.UsageCount >= o.UsageLimit {
		return domain.ErrUsageExhausted
	}
	return nil
}
