package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mintdesk/mintdesk/internal/auth"
	"github.com/mintdesk/mintdesk/internal/handler/dto"
	"github.com/mintdesk/mintdesk/internal/mint"
	"github.com/mintdesk/mintdesk/internal/model"
	"github.com/mintdesk/mintdesk/internal/repository"
	"github.com/mintdesk/mintdesk/internal/service"
	"github.com/mintdesk/mintdesk/internal/wallet"
)

// Minter submits mints and reports the latest outcome.
type Minter interface {
	Enabled() bool
	Outcome() model.MintOutcome
	Submit(ctx context.Context, req model.MintRequest) (model.MintOutcome, error)
}

// MintHistory lists recorded mint attempts.
type MintHistory interface {
	List(ctx context.Context, input service.ListMintsInput) ([]*model.MintAttempt, string, error)
}

// MintHandler handles mint submission, the current outcome and the ledger.
type MintHandler struct {
	minter   Minter
	accounts AccountSession
	history  MintHistory
	logger   *slog.Logger
}

// NewMintHandler creates a new MintHandler. history may be nil when no
// database is configured.
func NewMintHandler(minter Minter, accounts AccountSession, history MintHistory, logger *slog.Logger) *MintHandler {
	return &MintHandler{
		minter:   minter,
		accounts: accounts,
		history:  history,
		logger:   logger,
	}
}

// Submit handles POST /api/v1/mint. It blocks until the mint settles and
// returns the settled outcome, Success or Failure, with 200.
func (h *MintHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req dto.MintRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	recipient, ok := h.resolveRecipient(w, req.Recipient)
	if !ok {
		return
	}

	attrs := []any{"recipient", recipient.String()}
	if prefix := auth.KeyPrefixFromContext(r.Context()); prefix != "" {
		attrs = append(attrs, "key_prefix", prefix)
	}
	h.logger.Info("mint requested", attrs...)

	outcome, err := h.minter.Submit(r.Context(), model.MintRequest{Recipient: recipient})
	if err != nil {
		h.handleMintError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToMintOutcomeResponse(outcome, h.minter.Enabled()))
}

// Get handles GET /api/v1/mint.
func (h *MintHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.ToMintOutcomeResponse(h.minter.Outcome(), h.minter.Enabled()))
}

// List handles GET /api/v1/mints.
func (h *MintHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE", "Mint history requires DATABASE_URL")
		return
	}

	query := r.URL.Query()
	input := service.ListMintsInput{
		Recipient: query.Get("recipient"),
		Status:    query.Get("status"),
		Cursor:    query.Get("cursor"),
	}
	if l := query.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "Limit must be between 1 and 100")
			return
		}
		input.Limit = parsed
	}
	if input.Recipient != "" {
		addr, err := wallet.NormalizeAddress(input.Recipient)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", "Recipient must be a 0x-prefixed 20-byte hex string")
			return
		}
		input.Recipient = addr.String()
	}

	attempts, next, err := h.history.List(r.Context(), input)
	if err != nil {
		h.handleMintError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToMintAttemptListResponse(attempts, next))
}

// resolveRecipient validates an explicit recipient or falls back to the
// connected account.
func (h *MintHandler) resolveRecipient(w http.ResponseWriter, raw string) (model.Address, bool) {
	return resolveRecipient(w, h.accounts, raw)
}

func resolveRecipient(w http.ResponseWriter, accounts AccountSession, raw string) (model.Address, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		addr, ok := accounts.Account()
		if !ok {
			writeError(w, http.StatusBadRequest, "NO_ACCOUNT", "No recipient given and no account connected")
			return "", false
		}
		return addr, true
	}

	addr, err := wallet.NormalizeAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", "Recipient must be a 0x-prefixed 20-byte hex string")
		return "", false
	}
	return addr, true
}

// handleMintError maps mint and ledger errors to HTTP responses.
func (h *MintHandler) handleMintError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mint.ErrPending):
		writeError(w, http.StatusConflict, "MINT_PENDING", "A mint is already in progress")
	case errors.Is(err, mint.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, "MINT_DISABLED", "Minting requires SIGNER_PRIVATE_KEY")
	case errors.Is(err, service.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "Limit must be between 1 and 100")
	case errors.Is(err, service.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "INVALID_STATUS", "Status must be pending, success or failure")
	case errors.Is(err, repository.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid pagination cursor")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
