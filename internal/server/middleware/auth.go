package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/apiodactyl/apiodactyl/internal/model"
	"github.com/apiodactyl/apiodactyl/internal/service"
)

type contextKeyAuth string

const (
	// IdentityKey is the context key for the authenticated identity.
	IdentityKey contextKeyAuth = "auth_identity"
	// AdminIdentityKey is the context key for the authorized admin identity.
	AdminIdentityKey contextKeyAuth = "auth_admin_identity"

	keyIDSlotKey contextKeyAuth = "key_id_slot"
)

// Authenticate returns an HTTP middleware that validates the bearer token in
// the Authorization header. On success the Identity is attached to the
// request context. A missing, malformed or unknown token yields 401; a key
// store failure yields 500 without detail.
func Authenticate(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := service.ExtractToken(r.Header)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}

			identity, err := authSvc.Authenticate(r.Context(), token)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}

			reportKeyID(r.Context(), identity.ID())
			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin returns an HTTP middleware that enforces admin-level access.
// It must be used after Authenticate in the middleware chain.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin, err := service.Authorize(GetIdentity(r.Context()))
			if err != nil {
				writeAuthError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), AdminIdentityKey, admin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity extracts the authenticated identity from the context.
// Returns nil if the request was not authenticated.
func GetIdentity(ctx context.Context) *service.Identity {
	if id, ok := ctx.Value(IdentityKey).(*service.Identity); ok {
		return id
	}
	return nil
}

// GetAdminIdentity extracts the admin identity set by RequireAdmin.
func GetAdminIdentity(ctx context.Context) *service.AdminIdentity {
	if id, ok := ctx.Value(AdminIdentityKey).(*service.AdminIdentity); ok {
		return id
	}
	return nil
}

func withKeyIDSlot(ctx context.Context, slot *int64) context.Context {
	return context.WithValue(ctx, keyIDSlotKey, slot)
}

func reportKeyID(ctx context.Context, id int64) {
	if slot, ok := ctx.Value(keyIDSlotKey).(*int64); ok {
		*slot = id
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := http.StatusInternalServerError, "internal server error"
	switch {
	case errors.Is(err, service.ErrMissingHeader):
		status, message = http.StatusUnauthorized, "Missing Authorization header"
	case errors.Is(err, service.ErrInvalidFormat):
		status, message = http.StatusUnauthorized, "Invalid Authorization header format. Expected: Bearer <token>"
	case errors.Is(err, service.ErrInvalidKey):
		status, message = http.StatusUnauthorized, "Invalid API key"
	case errors.Is(err, service.ErrInsufficientPermissions):
		status, message = http.StatusForbidden, "Admin access required"
	default:
		slog.ErrorContext(r.Context(), "authentication failed",
			"error", err,
			"request_id", GetRequestID(r.Context()),
		)
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="apiodactyl"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
