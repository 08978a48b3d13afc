package model

import "strings"

// OwnerID is an optional user id. The zero value means "no owner".
//
// Payment providers and older checkout clients encode a missing owner as an
// absent field, an empty string, or the literal strings "null"/"undefined".
// ParseOwnerID is the only place those spellings are interpreted; everything
// past the boundary works with Present()/String().
type OwnerID struct {
	id string
}

// NoOwner is the absent owner.
var NoOwner = OwnerID{}

// ParseOwnerID normalizes a raw declared owner value.
func ParseOwnerID(raw string) OwnerID {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "", "null", "undefined", "nil", "none":
		return NoOwner
	}
	return OwnerID{id: v}
}

// ParseOwnerIDPtr is ParseOwnerID for nullable columns and JSON fields.
func ParseOwnerIDPtr(raw *string) OwnerID {
	if raw == nil {
		return NoOwner
	}
	return ParseOwnerID(*raw)
}

// OwnerOf wraps a known user id.
func OwnerOf(userID string) OwnerID { return ParseOwnerID(userID) }

func (o OwnerID) Present() bool  { return o.id != "" }
func (o OwnerID) String() string { return o.id }

// Ptr returns nil for an absent owner, for nullable columns.
func (o OwnerID) Ptr() *string {
	if !o.Present() {
		return nil
	}
	id := o.id
	return &id
}

// NormalizeEmail lower-cases and trims an email so comparisons and unique keys
// are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SameEmail compares two emails case-insensitively. Empty never matches.
func SameEmail(a, b string) bool {
	na, nb := NormalizeEmail(a), NormalizeEmail(b)
	return na != "" && na == nb
}
