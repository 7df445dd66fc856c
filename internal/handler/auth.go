package handler

import (
	"log/slog"
	"net/http"

	"github.com/apiodactyl/apiodactyl/internal/model"
	"github.com/apiodactyl/apiodactyl/internal/server/middleware"
	"github.com/apiodactyl/apiodactyl/internal/service"
)

// AuthHandler serves the identity and key administration endpoints. Routes
// are expected behind middleware.Authenticate, and admin routes also behind
// middleware.RequireAdmin.
type AuthHandler struct {
	authSvc *service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc *service.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AuthHandler{authSvc: authSvc, logger: logger}
}

// ---------------------------------------------------------------------------
// Identity
// ---------------------------------------------------------------------------

// Profile describes the calling key.
// GET /api/v1/auth/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, id.APIKey().Details())
}

// IsAdmin reports whether the calling key holds admin rights.
// GET /api/v1/auth/is-admin
func (h *AuthHandler) IsAdmin(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, id.IsAdmin())
}

// ---------------------------------------------------------------------------
// Key administration
// ---------------------------------------------------------------------------

type createKeyRequest struct {
	IsAdmin bool `json:"is_admin"`
}

// createKeyResponse carries the plaintext key. It is the only time the key
// is ever visible.
type createKeyResponse struct {
	Message string              `json:"message"`
	APIKey  string              `json:"api_key"`
	Details model.APIKeyDetails `json:"details"`
}

// CreateKey generates a key, stores its hash and returns it once. The body
// is optional; without it a non-admin key is created.
// POST /api/v1/auth/create-key
func (h *AuthHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	secret := service.GenerateKey()
	key, err := h.authSvc.CreateKey(r.Context(), secret, req.IsAdmin)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "api key issued",
		"key_id", key.ID,
		"is_admin", key.IsAdmin,
		"issued_by", adminID(r),
	)
	writeJSON(w, http.StatusCreated, createKeyResponse{
		Message: "API key created successfully",
		APIKey:  secret,
		Details: key.Details(),
	})
}

type revokeKeyRequest struct {
	APIKey string `json:"api_key"`
}

// RevokeKey deletes the key given in the body. The key stops authenticating
// immediately.
// DELETE /api/v1/auth/revoke-key
func (h *AuthHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	var req revokeKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	revoked, err := h.authSvc.RevokeKey(r.Context(), req.APIKey)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if !revoked {
		writeError(w, http.StatusNotFound, "API key not found")
		return
	}

	h.logger.InfoContext(r.Context(), "api key revoked by value", "revoked_by", adminID(r))
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "API key revoked successfully"})
}

// RevokeKeyByID deletes a key by its numeric ID.
// DELETE /api/v1/auth/keys/{keyId}
func (h *AuthHandler) RevokeKeyByID(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamID(r, "keyId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.authSvc.RevokeKeyByID(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "api key revoked", "key_id", id, "revoked_by", adminID(r))
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "API key revoked successfully"})
}

// PromoteKey grants admin rights to a key.
// POST /api/v1/auth/keys/{keyId}/promote
func (h *AuthHandler) PromoteKey(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamID(r, "keyId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := h.authSvc.PromoteKey(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, key.Details())
}

// ListKeys returns every stored key without its hash. ?admin=true limits the
// result to admin keys.
// GET /api/v1/auth/list-keys
func (h *AuthHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.authSvc.ListKeys(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	adminOnly := queryBool(r, "admin")
	resources := make([]model.APIKeyDetails, 0, len(keys))
	for _, k := range keys {
		if adminOnly && !k.IsAdmin {
			continue
		}
		resources = append(resources, k.Details())
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta: &model.ResponseMeta{
			Count: len(resources),
		},
	})
}

type cleanupResponse struct {
	Message string `json:"message"`
	Removed int    `json:"removed"`
}

// CleanupCache evicts expired cache entries on demand.
// POST /api/v1/auth/cleanup-cache
func (h *AuthHandler) CleanupCache(w http.ResponseWriter, r *http.Request) {
	removed := h.authSvc.CleanupCache()
	writeJSON(w, http.StatusOK, cleanupResponse{
		Message: "Cache cleanup completed",
		Removed: removed,
	})
}

func adminID(r *http.Request) int64 {
	if admin := middleware.GetAdminIdentity(r.Context()); admin != nil {
		return admin.ID()
	}
	return 0
}
