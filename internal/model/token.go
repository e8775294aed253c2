package model

import (
	"encoding/base64"
	"math/big"
)

// TokenID is an unsigned token identifier in decimal form.
type TokenID string

// TokenIDFromBig converts an on-chain uint256 to its decimal TokenID.
func TokenIDFromBig(n *big.Int) TokenID {
	if n == nil {
		return ""
	}
	return TokenID(n.String())
}

// Big parses the TokenID back into an integer.
// Returns false for anything other than a non-negative decimal.
func (id TokenID) Big() (*big.Int, bool) {
	if id == "" {
		return nil, false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return nil, false
		}
	}
	n, ok := new(big.Int).SetString(string(id), 10)
	return n, ok
}

// String returns the decimal form.
func (id TokenID) String() string {
	return string(id)
}

// UnsafeMarkup is token-supplied markup (inline SVG) that is rendered
// verbatim. Anything holding one is crossing a trust boundary: the markup comes
// from the contract and can carry script if the deployer is hostile.
type UnsafeMarkup string

// String returns the raw markup without any escaping.
func (m UnsafeMarkup) String() string {
	return string(m)
}

// DataURI wraps the markup as an image/svg+xml data URI. Browsers never run
// scripts in SVG loaded through <img>, which is what the sandboxed renderer
// relies on.
func (m UnsafeMarkup) DataURI() string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(m))
}

// DecodedMetadata is the part of the token metadata we render.
type DecodedMetadata struct {
	Image UnsafeMarkup
}

// TokenState is the display state of a token's metadata.
type TokenState string

const (
	TokenLoading TokenState = "loading"
	TokenReady   TokenState = "ready"
	TokenError   TokenState = "error"
)

// TokenMetadata tracks one owned token's metadata.
// RawURI nil means the fetch is still outstanding.
type TokenMetadata struct {
	TokenID     TokenID
	RawURI      *string
	Decoded     *DecodedMetadata
	DecodeError bool
}

// State derives the display state.
func (m TokenMetadata) State() TokenState {
	switch {
	case m.DecodeError:
		return TokenError
	case m.Decoded != nil:
		return TokenReady
	default:
		return TokenLoading
	}
}
