package model

import "time"

// Product is the slice of catalog data this service needs. The catalog itself is
// managed elsewhere.
type Product struct {
	ID           string
	Name         string
	Active       bool
	Price        int64 // minor units
	Currency     string
	DurationDays *int // nil: unlimited access
	Oto          *OtoConfig
	CreatedAt    time.Time
}

// OtoConfig describes the one-time offer shown after this product is bought.
type OtoConfig struct {
	TargetProductID string   `json:"target_product_id"`
	Discount        Discount `json:"discount"`
	WindowMinutes   int      `json:"window_minutes"`
}

func (p *Product) IsZero() bool { return p == nil || p.ID == "" }
