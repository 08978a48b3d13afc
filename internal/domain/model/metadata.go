package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MetadataKind tags one known metadata shape.
type MetadataKind string

const (
	MetaCoupon MetadataKind = "coupon"
	MetaBump   MetadataKind = "bump"
	MetaTerms  MetadataKind = "terms"
)

// MetadataItem is a closed union: only the types in this file implement it.
type MetadataItem interface {
	Kind() MetadataKind
	sealed()
}

// CouponMeta names the coupon applied at checkout (OTO codes included).
type CouponMeta struct {
	Code string `json:"code"`
}

// BumpMeta names an order-bump product bought together with the main product.
type BumpMeta struct {
	ProductID string `json:"product_id"`
	Amount    int64  `json:"amount"`
}

// TermsMeta records terms-of-sale acceptance at checkout.
type TermsMeta struct {
	Accepted   bool       `json:"accepted"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

func (CouponMeta) Kind() MetadataKind { return MetaCoupon }
func (BumpMeta) Kind() MetadataKind   { return MetaBump }
func (TermsMeta) Kind() MetadataKind  { return MetaTerms }
func (CouponMeta) sealed()            {}
func (BumpMeta) sealed()              {}
func (TermsMeta) sealed()             {}

// IsOto reports whether the coupon is a one-time-offer code.
func (c CouponMeta) IsOto() bool { return strings.HasPrefix(strings.ToUpper(c.Code), OtoCodePrefix) }

// Metadata is the ordered set of metadata items on a payment event, at most one per kind.
type Metadata []MetadataItem

func (m Metadata) Coupon() (CouponMeta, bool) {
	for _, it := range m {
		if c, ok := it.(CouponMeta); ok && c.Code != "" {
			return c, true
		}
	}
	return CouponMeta{}, false
}

func (m Metadata) Bump() (BumpMeta, bool) {
	for _, it := range m {
		if b, ok := it.(BumpMeta); ok && b.ProductID != "" {
			return b, true
		}
	}
	return BumpMeta{}, false
}

func (m Metadata) Terms() (TermsMeta, bool) {
	for _, it := range m {
		if t, ok := it.(TermsMeta); ok {
			return t, true
		}
	}
	return TermsMeta{}, false
}

type metadataEnvelope struct {
	Kind MetadataKind    `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make([]metadataEnvelope, 0, len(m))
	for _, it := range m {
		data, err := json.Marshal(it)
		if err != nil {
			return nil, err
		}
		out = append(out, metadataEnvelope{Kind: it.Kind(), Data: data})
	}
	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(b []byte) error {
	var envs []metadataEnvelope
	if err := json.Unmarshal(b, &envs); err != nil {
		return err
	}
	out := make(Metadata, 0, len(envs))
	seen := make(map[MetadataKind]bool, len(envs))
	for _, env := range envs {
		if seen[env.Kind] {
			return fmt.Errorf("metadata: duplicate %q entry", env.Kind)
		}
		seen[env.Kind] = true
		var (
			item MetadataItem
			err  error
		)
		switch env.Kind {
		case MetaCoupon:
			var c CouponMeta
			err = json.Unmarshal(env.Data, &c)
			item = c
		case MetaBump:
			var bm BumpMeta
			err = json.Unmarshal(env.Data, &bm)
			item = bm
		case MetaTerms:
			var t TermsMeta
			err = json.Unmarshal(env.Data, &t)
			item = t
		default:
			return fmt.Errorf("metadata: unknown kind %q", env.Kind)
		}
		if err != nil {
			return fmt.Errorf("metadata %s: %w", env.Kind, err)
		}
		out = append(out, item)
	}
	*m = out
	return nil
}
