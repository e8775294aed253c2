package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// APIContentSecurityPolicy applies to every response unless a handler
// replaces it. Pages and token images set their own policies.
const APIContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

const defaultHSTSMaxAge = 365 * 24 * time.Hour

type SecurityConfig struct {
	// IsDevelopment drops HSTS so local plain-HTTP testing keeps working.
	IsDevelopment bool
	// HSTSMaxAge defaults to one year.
	HSTSMaxAge time.Duration
}

// headers returns the fixed response headers for cfg.
func (cfg SecurityConfig) headers() [][2]string {
	hs := [][2]string{
		{"Content-Security-Policy", APIContentSecurityPolicy},
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"X-XSS-Protection", "0"},
		{"Referrer-Policy", "strict-origin-when-cross-origin"},
		{"Cross-Origin-Opener-Policy", "same-origin"},
		{"Cross-Origin-Resource-Policy", "same-origin"},
		{"Permissions-Policy", "camera=(), geolocation=(), microphone=(), payment=(), usb=()"},
		// Ownership and mint state change underneath the client.
		{"Cache-Control", "no-store"},
	}
	if cfg.IsDevelopment {
		return hs
	}
	maxAge := cfg.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	return append(hs, [2]string{
		"Strict-Transport-Security",
		"max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains",
	})
}

// Security sets baseline security headers before the handler runs, so a
// handler may still override any of them.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	fixed := cfg.headers()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range fixed {
				h.Set(kv[0], kv[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize answers 413 to a request whose declared Content-Length exceeds
// maxBytes and caps the read of one without a declared length.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
