package dto

import (
	"time"

	"github.com/mintdesk/mintdesk/internal/explorer"
	"github.com/mintdesk/mintdesk/internal/model"
)

// MintRequest is the body of POST /api/v1/mint. An empty recipient mints to
// the connected account.
type MintRequest struct {
	Recipient string `json:"recipient,omitempty"`
}

// MintOutcomeResponse is the current mint outcome.
type MintOutcomeResponse struct {
	State       string `json:"state"`
	TxHash      string `json:"tx_hash,omitempty"`
	Message     string `json:"message,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// ToMintOutcomeResponse converts an outcome; the explorer link is present
// only on success.
func ToMintOutcomeResponse(o model.MintOutcome, enabled bool) MintOutcomeResponse {
	resp := MintOutcomeResponse{
		State:   string(o.State),
		Message: o.Message,
		Enabled: enabled,
	}
	if o.State == model.OutcomeSuccess {
		resp.TxHash = o.TxHash
		resp.ExplorerURL = explorer.ResolveExplorerURL(o.TxHash)
	}
	return resp
}

// MintAttemptResponse is one ledger row.
type MintAttemptResponse struct {
	ID          string     `json:"id"`
	Contract    string     `json:"contract"`
	Recipient   string     `json:"recipient"`
	Status      string     `json:"status"`
	TxHash      string     `json:"tx_hash,omitempty"`
	ExplorerURL string     `json:"explorer_url,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
}

// MintAttemptListResponse is a page of ledger rows.
type MintAttemptListResponse struct {
	Data       []MintAttemptResponse `json:"data"`
	Pagination *Pagination           `json:"pagination"`
}

// ToMintAttemptResponse converts a ledger row.
func ToMintAttemptResponse(a *model.MintAttempt) MintAttemptResponse {
	resp := MintAttemptResponse{
		ID:        a.ID,
		Contract:  a.Contract,
		Recipient: a.Recipient,
		Status:    string(a.Status),
		TxHash:    a.TxHash,
		Error:     a.Error,
		CreatedAt: a.CreatedAt,
		SettledAt: a.SettledAt,
	}
	if a.TxHash != "" {
		resp.ExplorerURL = explorer.ResolveExplorerURL(a.TxHash)
	}
	return resp
}

// ToMintAttemptListResponse converts a page of ledger rows.
func ToMintAttemptListResponse(attempts []*model.MintAttempt, nextCursor string) *MintAttemptListResponse {
	data := make([]MintAttemptResponse, len(attempts))
	for i, a := range attempts {
		data[i] = ToMintAttemptResponse(a)
	}
	return &MintAttemptListResponse{
		Data: data,
		Pagination: &Pagination{
			NextCursor: nextCursor,
			HasMore:    nextCursor != "",
		},
	}
}
