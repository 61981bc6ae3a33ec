package model

import "time"

// MagicLink is the persisted half of a one-time login link. The raw token
// is only ever held by the recipient; the row keeps its SHA-256 digest.
type MagicLink struct {
	ID        int64      `json:"id"`
	TokenHash string     `json:"-"`
	Email     string     `json:"email"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
}
