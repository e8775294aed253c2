package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mintdesk/mintdesk/internal/handler/dto"
	"github.com/mintdesk/mintdesk/internal/model"
	"github.com/mintdesk/mintdesk/internal/ownership"
)

const hostileSVG = `<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script><circle r="5"/></svg>`

func strPtr(s string) *string { return &s }

func sampleSnapshot() ownership.Snapshot {
	return ownership.Snapshot{
		Account: testAccount,
		Tokens: []model.TokenMetadata{
			{TokenID: "1", RawURI: strPtr(`{"image":"x"}`), Decoded: &model.DecodedMetadata{Image: hostileSVG}},
			{TokenID: "2"},
			{TokenID: "3", RawURI: strPtr("not json"), DecodeError: true},
		},
		Generation: 4,
		UpdatedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

// withTokenID routes a request through chi so URLParam works.
func withTokenID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestTokenHandler_List(t *testing.T) {
	t.Parallel()

	h := NewTokenHandler(&fakeView{snap: sampleSnapshot()}, RenderSandboxed, discardLogger())
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tokens", nil))

	var resp dto.TokenListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Account != testAccount || resp.Generation != 4 || resp.UpdatedAt == nil {
		t.Errorf("unexpected envelope %+v", resp)
	}

	wantStates := []string{"ready", "loading", "error"}
	if len(resp.Tokens) != len(wantStates) {
		t.Fatalf("got %d tokens", len(resp.Tokens))
	}
	for i, want := range wantStates {
		if resp.Tokens[i].State != want {
			t.Errorf("token %d state = %q, want %q", i, resp.Tokens[i].State, want)
		}
	}
	if resp.Tokens[0].ImageURL != "/tokens/1/image" || !strings.HasPrefix(resp.Tokens[0].ImageDataURI, "data:image/svg+xml;base64,") {
		t.Errorf("ready token image fields %+v", resp.Tokens[0])
	}
	if resp.Tokens[1].ImageURL != "" || resp.Tokens[2].ImageDataURI != "" {
		t.Error("non-ready tokens must not carry image fields")
	}
	if strings.Contains(rec.Body.String(), "<script>") {
		t.Error("raw markup leaked into JSON")
	}
}

func TestTokenHandler_Refresh(t *testing.T) {
	t.Parallel()

	view := &fakeView{}
	h := NewTokenHandler(view, RenderInline, discardLogger())
	rec := httptest.NewRecorder()
	h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tokens/refresh", nil))

	if rec.Code != http.StatusAccepted || view.refreshes != 1 {
		t.Errorf("status = %d, refreshes = %d", rec.Code, view.refreshes)
	}
}

func TestTokenHandler_Get(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		id         string
		wantStatus int
		wantCode   string
	}{
		{"owned", "1", http.StatusOK, ""},
		{"leading zeros normalize", "0001", http.StatusOK, ""},
		{"not owned", "9", http.StatusNotFound, "TOKEN_NOT_FOUND"},
		{"negative", "-1", http.StatusBadRequest, "INVALID_TOKEN_ID"},
		{"hex", "0x1", http.StatusBadRequest, "INVALID_TOKEN_ID"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewTokenHandler(&fakeView{snap: sampleSnapshot()}, RenderSandboxed, discardLogger())
			rec := httptest.NewRecorder()
			h.Get(rec, withTokenID(httptest.NewRequest(http.MethodGet, "/api/v1/tokens/x", nil), tt.id))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if got := decodeError(t, rec).Code; got != tt.wantCode {
					t.Errorf("code = %q, want %q", got, tt.wantCode)
				}
				return
			}
			var resp dto.TokenResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.TokenID != "1" || resp.State != "ready" {
				t.Errorf("resp %+v", resp)
			}
		})
	}
}

func TestTokenHandler_Image(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mode        string
		id          string
		wantStatus  int
		wantType    string
		wantCSP     string
		wantInBody  string
		wantNotBody string
	}{
		{
			name:       "inline serves raw svg under sandbox policy",
			mode:       RenderInline,
			id:         "1",
			wantStatus: http.StatusOK,
			wantType:   "image/svg+xml",
			wantCSP:    inlineImagePolicy,
			wantInBody: hostileSVG,
		},
		{
			name:        "sandboxed wraps in img data uri",
			mode:        RenderSandboxed,
			id:          "1",
			wantStatus:  http.StatusOK,
			wantType:    "text/html; charset=utf-8",
			wantCSP:     sandboxedImagePolicy,
			wantInBody:  `<img src="data:image/svg&#43;xml;base64,`,
			wantNotBody: "<script>",
		},
		{
			name:       "loading",
			mode:       RenderInline,
			id:         "2",
			wantStatus: http.StatusConflict,
			wantInBody: "TOKEN_LOADING",
		},
		{
			name:       "decode error",
			mode:       RenderSandboxed,
			id:         "3",
			wantStatus: http.StatusUnprocessableEntity,
			wantInBody: "METADATA_INVALID",
		},
		{
			name:       "not owned",
			mode:       RenderSandboxed,
			id:         "99",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewTokenHandler(&fakeView{snap: sampleSnapshot()}, tt.mode, discardLogger())
			rec := httptest.NewRecorder()
			h.Image(rec, withTokenID(httptest.NewRequest(http.MethodGet, "/tokens/x/image", nil), tt.id))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantType != "" && rec.Header().Get("Content-Type") != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", rec.Header().Get("Content-Type"), tt.wantType)
			}
			if tt.wantCSP != "" && rec.Header().Get("Content-Security-Policy") != tt.wantCSP {
				t.Errorf("CSP = %q, want %q", rec.Header().Get("Content-Security-Policy"), tt.wantCSP)
			}
			body := rec.Body.String()
			if !strings.Contains(body, tt.wantInBody) {
				t.Errorf("body missing %q: %s", tt.wantInBody, body)
			}
			if tt.wantNotBody != "" && strings.Contains(body, tt.wantNotBody) {
				t.Errorf("body contains %q", tt.wantNotBody)
			}
		})
	}
}

func TestNewTokenHandler_UnknownModeIsSandboxed(t *testing.T) {
	t.Parallel()

	h := NewTokenHandler(&fakeView{}, "svg-please", discardLogger())
	if h.renderMode != RenderSandboxed {
		t.Errorf("renderMode = %q", h.renderMode)
	}
}
