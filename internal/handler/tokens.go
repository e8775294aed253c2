package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mintdesk/mintdesk/internal/handler/dto"
	"github.com/mintdesk/mintdesk/internal/model"
	"github.com/mintdesk/mintdesk/internal/ownership"
)

// Render modes for token images.
const (
	RenderInline    = "inline"
	RenderSandboxed = "sandboxed"
)

// Policies for responses that carry token markup. Neither allows script.
const (
	inlineImagePolicy    = "default-src 'none'; style-src 'unsafe-inline'; sandbox"
	sandboxedImagePolicy = "default-src 'none'; img-src data:; style-src 'unsafe-inline'; frame-ancestors 'self'"
)

// OwnedTokens is the ownership view as seen by handlers.
type OwnedTokens interface {
	Snapshot() ownership.Snapshot
	Token(id model.TokenID) (model.TokenMetadata, bool)
	RequestRefresh()
}

// TokenHandler serves the owned token set and token images.
type TokenHandler struct {
	view       OwnedTokens
	renderMode string
	logger     *slog.Logger
}

// NewTokenHandler creates a new TokenHandler. Unknown render modes fall back
// to sandboxed.
func NewTokenHandler(view OwnedTokens, renderMode string, logger *slog.Logger) *TokenHandler {
	if renderMode != RenderInline {
		renderMode = RenderSandboxed
	}
	return &TokenHandler{view: view, renderMode: renderMode, logger: logger}
}

// List handles GET /api/v1/tokens.
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	snap := h.view.Snapshot()
	writeJSON(w, http.StatusOK, dto.ToTokenListResponse(snap.Account, snap.Tokens, snap.Generation, snap.UpdatedAt))
}

// Refresh handles POST /api/v1/tokens/refresh. The refresh runs in the
// background; poll List for the result.
func (h *TokenHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.view.RequestRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}

// Get handles GET /api/v1/tokens/{id}.
func (h *TokenHandler) Get(w http.ResponseWriter, r *http.Request) {
	meta, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dto.ToTokenResponse(meta))
}

// Image handles GET /tokens/{id}/image.
//
// In inline mode the markup is served verbatim as image/svg+xml under a
// sandboxing policy. In sandboxed mode it is wrapped in an <img> data URI,
// where browsers never execute SVG script.
func (h *TokenHandler) Image(w http.ResponseWriter, r *http.Request) {
	meta, ok := h.lookup(w, r)
	if !ok {
		return
	}

	switch meta.State() {
	case model.TokenLoading:
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "TOKEN_LOADING", "Token metadata is still loading")
		return
	case model.TokenError:
		writeError(w, http.StatusUnprocessableEntity, "METADATA_INVALID", "Token metadata could not be decoded")
		return
	}

	markup := meta.Decoded.Image
	if h.renderMode == RenderInline {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Content-Security-Policy", inlineImagePolicy)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(markup.String()))
		return
	}

	w.Header().Set("Content-Security-Policy", sandboxedImagePolicy)
	// The same-origin /nft page may frame this document.
	w.Header().Set("X-Frame-Options", "SAMEORIGIN")
	renderTemplate(w, h.logger, "image.html", imagePage{
		TokenID: meta.TokenID.String(),
		DataURI: dataURL(markup),
	})
}

// lookup resolves the {id} route parameter to an owned token.
func (h *TokenHandler) lookup(w http.ResponseWriter, r *http.Request) (model.TokenMetadata, bool) {
	n, ok := model.TokenID(chi.URLParam(r, "id")).Big()
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_TOKEN_ID", "Token id must be a non-negative integer")
		return model.TokenMetadata{}, false
	}

	meta, ok := h.view.Token(model.TokenIDFromBig(n))
	if !ok {
		writeError(w, http.StatusNotFound, "TOKEN_NOT_FOUND", "Token is not owned by the connected account")
		return model.TokenMetadata{}, false
	}
	return meta, true
}
