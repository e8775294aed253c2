// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mintdesk/mintdesk/internal/handler/dto"
)

// Version is reported by the service info endpoint.
const Version = "0.1.0"

// ServiceInfo describes the deployment served by this process.
type ServiceInfo struct {
	Contract        string
	ContractAddress string
	ChainID         int64
	RenderMode      string
}

// Handler serves the service-level endpoints.
type Handler struct {
	info ServiceInfo
}

// New creates a new Handler instance.
func New(info ServiceInfo) *Handler {
	return &Handler{info: info}
}

// Hello reports what this instance is pointed at.
// GET /
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "Hello from mintdesk!",
		"version":          Version,
		"contract":         h.info.Contract,
		"contract_address": h.info.ContractAddress,
		"chain_id":         h.info.ChainID,
		"render_mode":      h.info.RenderMode,
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
