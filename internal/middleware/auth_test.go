package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mintdesk/mintdesk/internal/auth"
)

const validMintKey = "mk_live_abc123_0123456789abcdef0123456789abcdef"

type fakeVerifier struct {
	valid string
	calls int
}

func (f *fakeVerifier) Verify(key string) bool {
	f.calls++
	return key == f.valid
}

func TestRequireMintKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantReason string
	}{
		{"bearer ok", "Authorization", "Bearer " + validMintKey, http.StatusOK, ""},
		{"x-api-key ok", "X-API-Key", validMintKey, http.StatusOK, ""},
		{"missing", "", "", http.StatusUnauthorized, "missing_key"},
		{"basic auth ignored", "Authorization", "Basic abc", http.StatusUnauthorized, "missing_key"},
		{"malformed", "X-API-Key", "pk_live_abc123_0123456789abcdef0123456789abcdef", http.StatusUnauthorized, "invalid_format"},
		{"wrong key", "X-API-Key", "mk_live_abc123_ffffffffffffffffffffffffffffffff", http.StatusUnauthorized, "invalid_key"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			var slept time.Duration
			mw := RequireMintKey(AuthConfig{
				Logger:   slog.New(slog.NewJSONHandler(&buf, nil)),
				Verifier: &fakeVerifier{valid: validMintKey},
				Sleep:    func(d time.Duration) { slept = d },
			})

			var gotPrefix string
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPrefix = auth.KeyPrefixFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/mint", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			if tt.wantStatus == http.StatusOK {
				if gotPrefix != "abc123" {
					t.Errorf("key prefix = %q, want abc123", gotPrefix)
				}
				return
			}

			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["code"] != "UNAUTHORIZED" {
				t.Errorf("code = %q, want UNAUTHORIZED", body["code"])
			}
			if !strings.Contains(buf.String(), `"reason":"`+tt.wantReason+`"`) {
				t.Errorf("log missing reason %s: %s", tt.wantReason, buf.String())
			}
			if strings.Contains(buf.String(), "0123456789abcdef") {
				t.Error("log contains key material")
			}
			if slept <= 0 || slept > minAuthDuration {
				t.Errorf("slept %v, want (0, %v]", slept, minAuthDuration)
			}
		})
	}
}

func TestRequireMintKey_NilVerifierIsOpen(t *testing.T) {
	t.Parallel()

	handler := RequireMintKey(AuthConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/mint", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestRequireMintKey_SkipsVerifierOnBadFormat(t *testing.T) {
	t.Parallel()

	verifier := &fakeVerifier{valid: validMintKey}
	handler := RequireMintKey(AuthConfig{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Verifier: verifier,
		Sleep:    func(time.Duration) {},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/mint", nil)
	req.Header.Set("X-API-Key", "garbage")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if verifier.calls != 0 {
		t.Errorf("verifier called %d times for malformed key", verifier.calls)
	}
}
