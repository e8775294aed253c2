package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/mintdesk/mintdesk/internal/handler/dto"
	"github.com/mintdesk/mintdesk/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"trustMarkup": trustMarkup,
}).ParseFS(templateFS, "templates/*.html"))

// pagePolicy forbids script on the display page. Inline token markup is
// injected into this document, so any <script> or handler attribute it
// carries is blocked here.
const pagePolicy = "default-src 'none'; img-src 'self' data:; style-src 'unsafe-inline'; frame-src 'self'; form-action 'self'; frame-ancestors 'none'"

// trustMarkup is the single place token markup becomes template.HTML.
func trustMarkup(m model.UnsafeMarkup) template.HTML {
	return template.HTML(m.String()) //nolint:gosec // token markup is rendered verbatim in inline mode
}

func dataURL(m model.UnsafeMarkup) template.URL {
	return template.URL(m.DataURI()) //nolint:gosec // data:image/svg+xml only loads in <img>
}

// PageHandler renders the HTML display surface.
type PageHandler struct {
	info       ServiceInfo
	view       OwnedTokens
	minter     Minter
	accounts   AccountSession
	renderMode string
	mintForm   bool
	logger     *slog.Logger
}

// PageConfig configures a PageHandler.
type PageConfig struct {
	Info       ServiceInfo
	RenderMode string
	// MintForm enables the HTML mint button. It stays off when mints
	// require an API key, which a browser form cannot send.
	MintForm bool
}

// NewPageHandler creates a new PageHandler.
func NewPageHandler(cfg PageConfig, view OwnedTokens, minter Minter, accounts AccountSession, logger *slog.Logger) *PageHandler {
	mode := cfg.RenderMode
	if mode != RenderInline {
		mode = RenderSandboxed
	}
	return &PageHandler{
		info:       cfg.Info,
		view:       view,
		minter:     minter,
		accounts:   accounts,
		renderMode: mode,
		mintForm:   cfg.MintForm,
		logger:     logger,
	}
}

type pageToken struct {
	ID      string
	State   string
	Markup  model.UnsafeMarkup
	Inline  bool
	DataURI template.URL
}

type nftPage struct {
	Contract        string
	ContractAddress string
	Account         string
	Connected       bool
	Outcome         dto.MintOutcomeResponse
	Pending         bool
	MintForm        bool
	Tokens          []pageToken
}

type imagePage struct {
	TokenID string
	DataURI template.URL
}

// NFT handles GET /nft.
func (h *PageHandler) NFT(w http.ResponseWriter, r *http.Request) {
	snap := h.view.Snapshot()
	outcome := h.minter.Outcome()

	page := nftPage{
		Contract:        h.info.Contract,
		ContractAddress: h.info.ContractAddress,
		Account:         snap.Account.String(),
		Connected:       snap.Account != "",
		Outcome:         dto.ToMintOutcomeResponse(outcome, h.minter.Enabled()),
		Pending:         outcome.IsPending(),
		MintForm:        h.mintForm && h.minter.Enabled(),
		Tokens:          make([]pageToken, 0, len(snap.Tokens)),
	}
	for _, meta := range snap.Tokens {
		t := pageToken{ID: meta.TokenID.String(), State: string(meta.State())}
		if meta.State() == model.TokenReady {
			if h.renderMode == RenderInline {
				t.Inline = true
				t.Markup = meta.Decoded.Image
			} else {
				t.DataURI = dataURL(meta.Decoded.Image)
			}
		}
		page.Tokens = append(page.Tokens, t)
	}

	w.Header().Set("Content-Security-Policy", pagePolicy)
	renderTemplate(w, h.logger, "nft.html", page)
}

// Mint handles POST /nft/mint from the page form. It mints to the form's
// recipient, or the connected account when that is blank, and redirects
// back to /nft.
func (h *PageHandler) Mint(w http.ResponseWriter, r *http.Request) {
	if !h.mintForm {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
		return
	}
	if !sameOrigin(r) {
		writeError(w, http.StatusForbidden, "CROSS_ORIGIN", "Cross-origin form submission rejected")
		return
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form body")
		return
	}
	recipient, ok := resolveRecipient(w, h.accounts, r.PostForm.Get("recipient"))
	if !ok {
		return
	}

	// The outcome, including a guard rejection, is visible on /nft.
	if _, err := h.minter.Submit(r.Context(), model.MintRequest{Recipient: recipient}); err != nil {
		h.logger.Info("page mint not submitted", "error", err)
	}
	http.Redirect(w, r, "/nft", http.StatusSeeOther)
}

// sameOrigin rejects browser requests that did not come from this origin.
func sameOrigin(r *http.Request) bool {
	switch r.Header.Get("Sec-Fetch-Site") {
	case "", "same-origin", "none":
	default:
		return false
	}
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return origin == ""
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

func renderTemplate(w http.ResponseWriter, logger *slog.Logger, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		logger.Error("template render failed", "template", name, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
