package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mintdesk/mintdesk/internal/handler/dto"
	"github.com/mintdesk/mintdesk/internal/model"
	"github.com/mintdesk/mintdesk/internal/wallet"
)

// AccountSession is the connected-account holder.
type AccountSession interface {
	Account() (model.Address, bool)
	Connect(addr string) (model.Address, error)
	Disconnect()
}

// AccountHandler handles the connected account.
type AccountHandler struct {
	session AccountSession
	logger  *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(session AccountSession, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{session: session, logger: logger}
}

// Get handles GET /api/v1/account.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.session.Account()
	writeJSON(w, http.StatusOK, dto.AccountResponse{Address: addr.String(), Connected: ok})
}

// Put handles PUT /api/v1/account. Switching accounts invalidates the owned
// token set through the session subscription.
func (h *AccountHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req dto.AccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	addr, err := h.session.Connect(req.Address)
	if err != nil {
		if errors.Is(err, wallet.ErrInvalidAddress) {
			writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", "Address must be a 0x-prefixed 20-byte hex string")
			return
		}
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	h.logger.Info("account_connected", "account", addr.String())
	writeJSON(w, http.StatusOK, dto.AccountResponse{Address: addr.String(), Connected: true})
}

// Delete handles DELETE /api/v1/account.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.session.Disconnect()
	h.logger.Info("account_disconnected")
	w.WriteHeader(http.StatusNoContent)
}
