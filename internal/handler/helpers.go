package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/apiodactyl/apiodactyl/internal/model"
	"github.com/apiodactyl/apiodactyl/internal/server/middleware"
	"github.com/apiodactyl/apiodactyl/internal/service"
)

// maxBodySize caps request bodies. Auth payloads are tiny.
const maxBodySize = 64 * 1024

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeServiceError maps an AuthService error to a response. Store failures
// are logged and answered with a generic 500 so no backend detail leaks.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrKeyNotFound):
		writeError(w, http.StatusNotFound, "API key not found")
	case errors.Is(err, service.ErrDuplicateKey):
		writeError(w, http.StatusConflict, "API key already exists")
	case errors.Is(err, service.ErrEmptySecret):
		writeError(w, http.StatusBadRequest, "api_key must not be empty")
	case service.IsUnauthorized(err):
		writeError(w, http.StatusUnauthorized, "Invalid API key")
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
}

// readOptionalJSON is readJSON for endpoints whose body may be omitted. An
// empty body leaves v untouched.
func readOptionalJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if err := readJSON(r, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// urlParamID parses a positive integer path parameter.
func urlParamID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return id, nil
}

// queryBool extracts a boolean query parameter. Returns false if the parameter
// is missing or not "true"/"1".
func queryBool(r *http.Request, key string) bool {
	val := r.URL.Query().Get(key)
	return val == "true" || val == "1"
}
