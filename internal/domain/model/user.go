package model

import "time"

// User is an account known to the auth provider.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

// Caller is the authenticated identity attached to a request.
type Caller struct {
	ID    string
	Email string
}
