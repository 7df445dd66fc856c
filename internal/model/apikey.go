package model

import "time"

// APIKey is a stored credential. Only the SHA-256 hash of the raw key is
// persisted; the plaintext is shown to its owner once at creation time.
type APIKey struct {
	ID         int64      `json:"id" db:"id"`
	KeyHash    string     `json:"-" db:"key_hash"` // SHA-256 hash, never expose
	IsAdmin    bool       `json:"is_admin" db:"is_admin"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// APIKeyDetails is the client-facing view of an APIKey.
type APIKeyDetails struct {
	ID         int64      `json:"id"`
	IsAdmin    bool       `json:"is_admin"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

// Details strips the hash from k.
func (k APIKey) Details() APIKeyDetails {
	return APIKeyDetails{
		ID:         k.ID,
		IsAdmin:    k.IsAdmin,
		CreatedAt:  k.CreatedAt,
		LastUsedAt: k.LastUsedAt,
	}
}
