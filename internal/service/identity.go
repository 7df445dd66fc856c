package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/apiodactyl/apiodactyl/internal/model"
)

// BearerPrefix is the required prefix of the Authorization header value.
const BearerPrefix = "Bearer "

// Identity is a validated API key attached to a request.
type Identity struct {
	key model.APIKey
}

// NewIdentity wraps a validated key record.
func NewIdentity(key model.APIKey) *Identity {
	return &Identity{key: key}
}

func (i *Identity) ID() int64              { return i.key.ID }
func (i *Identity) IsAdmin() bool          { return i.key.IsAdmin }
func (i *Identity) CreatedAt() time.Time   { return i.key.CreatedAt }
func (i *Identity) LastUsedAt() *time.Time { return i.key.LastUsedAt }

// APIKey returns the underlying key record.
func (i *Identity) APIKey() model.APIKey { return i.key }

// RequireAdmin returns ErrInsufficientPermissions unless the key is an admin.
func (i *Identity) RequireAdmin() error {
	if !i.key.IsAdmin {
		return ErrInsufficientPermissions
	}
	return nil
}

// AdminIdentity is an Identity known to hold admin rights.
type AdminIdentity struct {
	*Identity
}

// ExtractToken returns the bearer token from the Authorization header. An
// absent header yields ErrMissingHeader and any value without the Bearer
// prefix yields ErrInvalidFormat.
func ExtractToken(h http.Header) (string, error) {
	values := h.Values("Authorization")
	if len(values) == 0 {
		return "", ErrMissingHeader
	}
	v := values[0]
	if !strings.HasPrefix(v, BearerPrefix) {
		return "", ErrInvalidFormat
	}
	return strings.TrimPrefix(v, BearerPrefix), nil
}

// Authenticate validates token and schedules a last-used update for the key.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*Identity, error) {
	key, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	s.UpdateLastUsed(key.ID)
	return NewIdentity(key), nil
}

// Authorize upgrades id to an AdminIdentity, or returns
// ErrInsufficientPermissions.
func Authorize(id *Identity) (*AdminIdentity, error) {
	if id == nil {
		return nil, ErrInsufficientPermissions
	}
	if err := id.RequireAdmin(); err != nil {
		return nil, err
	}
	return &AdminIdentity{Identity: id}, nil
}
