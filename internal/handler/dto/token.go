package dto

import (
	"time"

	"github.com/mintdesk/mintdesk/internal/model"
)

// TokenResponse describes one owned token. The raw image markup is never
// returned as a string; clients get a data URI meant for an <img> element
// and the URL of the server-side renderer.
type TokenResponse struct {
	TokenID      string `json:"token_id"`
	State        string `json:"state"`
	ImageURL     string `json:"image_url,omitempty"`
	ImageDataURI string `json:"image_data_uri,omitempty"`
}

// TokenListResponse is the owned set of the connected account.
type TokenListResponse struct {
	Account    string          `json:"account,omitempty"`
	Tokens     []TokenResponse `json:"tokens"`
	Generation uint64          `json:"generation"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
}

// ToTokenResponse converts one token's metadata.
func ToTokenResponse(m model.TokenMetadata) TokenResponse {
	resp := TokenResponse{
		TokenID: m.TokenID.String(),
		State:   string(m.State()),
	}
	if m.State() == model.TokenReady {
		resp.ImageURL = "/tokens/" + m.TokenID.String() + "/image"
		resp.ImageDataURI = m.Decoded.Image.DataURI()
	}
	return resp
}

// ToTokenListResponse converts an ownership snapshot.
func ToTokenListResponse(account model.Address, tokens []model.TokenMetadata, generation uint64, updatedAt time.Time) *TokenListResponse {
	resp := &TokenListResponse{
		Account:    account.String(),
		Tokens:     make([]TokenResponse, len(tokens)),
		Generation: generation,
	}
	for i, m := range tokens {
		resp.Tokens[i] = ToTokenResponse(m)
	}
	if !updatedAt.IsZero() {
		resp.UpdatedAt = &updatedAt
	}
	return resp
}
