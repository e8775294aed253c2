package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mintdesk/mintdesk/internal/auth"
)

// minAuthDuration is the minimum time spent on a rejected request so failures
// cannot be told apart by timing.
const minAuthDuration = 200 * time.Millisecond

// KeyVerifier checks a presented mint key.
type KeyVerifier interface {
	Verify(key string) bool
}

// AuthConfig holds configuration for the mint key middleware.
type AuthConfig struct {
	Logger   *slog.Logger
	Verifier KeyVerifier
	// Sleep is replaced in tests.
	Sleep func(time.Duration)
}

// RequireMintKey returns a middleware that guards mint endpoints with the
// configured mint API key. A nil Verifier leaves the route open.
func RequireMintKey(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}

	return func(next http.Handler) http.Handler {
		if cfg.Verifier == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			key := extractAPIKey(r)
			reason := ""
			switch {
			case key == "":
				reason = "missing_key"
			case !auth.ValidateKeyFormat(key):
				reason = "invalid_format"
			case !cfg.Verifier.Verify(key):
				reason = "invalid_key"
			}

			if reason != "" {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("ip", getClientIP(r)),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				if elapsed := time.Since(start); elapsed < minAuthDuration {
					cfg.Sleep(minAuthDuration - elapsed)
				}
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
				return
			}

			parsed, _ := auth.ParseKey(key)
			ctx := auth.ContextWithKeyPrefix(r.Context(), parsed.Prefix)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractAPIKey supports both "Authorization: Bearer <key>" and
// "X-API-Key: <key>".
func extractAPIKey(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
