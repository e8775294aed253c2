// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Pagination provides cursor-based pagination info.
type Pagination struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// AccountRequest is the body of PUT /api/v1/account.
type AccountRequest struct {
	Address string `json:"address"`
}

// AccountResponse describes the connected account.
type AccountResponse struct {
	Address   string `json:"address,omitempty"`
	Connected bool   `json:"connected"`
}
