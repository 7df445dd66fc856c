package handler

import (
	"fmt"
	"net/http"

	"github.com/apiodactyl/apiodactyl/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI 3.1 document for the authentication API.
type OpenAPIHandler struct {
	version string
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(version string) *OpenAPIHandler {
	return &OpenAPIHandler{version: version}
}

// ServeSpec returns the document with the server URL derived from the
// request.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, openapi.GenerateAuthSpec(baseURL(r), h.version))
}

// baseURL reconstructs the externally visible origin of the request.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}
