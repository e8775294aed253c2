// Package webhook delivers signed mint notifications to a configured endpoint.
//
// Every request carries X-Mintdesk-Timestamp (unix seconds) and
// X-Mintdesk-Signature, the hex HMAC-SHA256 of "<timestamp>.<body>" keyed by
// the shared secret.
package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
	ErrInvalidSignature     = errors.New("invalid signature")
)

// DefaultReplayWindow is how far a receiver should tolerate clock skew.
const DefaultReplayWindow = 5 * time.Minute

func sign(secret string, timestamp int64, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	// hash.Hash writes never fail.
	_, _ = mac.Write(strconv.AppendInt(nil, timestamp, 10))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// GenerateSignature returns the X-Mintdesk-Signature value for body sent at
// timestamp.
func GenerateSignature(secret string, timestamp int64, body []byte) string {
	return hex.EncodeToString(sign(secret, timestamp, body))
}

// ValidateSignature is the receiver side of GenerateSignature.
func ValidateSignature(secret, signature string, timestamp int64, body []byte, replayWindow time.Duration) error {
	return validateSignatureAt(time.Now(), secret, signature, timestamp, body, replayWindow)
}

func validateSignatureAt(now time.Time, secret, signature string, timestamp int64, body []byte, replayWindow time.Duration) error {
	skew := now.Sub(time.Unix(timestamp, 0))
	if skew > replayWindow || skew < -replayWindow {
		return ErrReplayWindowExceeded
	}
	got, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(got, sign(secret, timestamp, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// GenerateSecret returns a hex encoded 256-bit MINT_WEBHOOK_SECRET.
func GenerateSecret() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
