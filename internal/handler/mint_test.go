package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mintdesk/mintdesk/internal/handler/dto"
	"github.com/mintdesk/mintdesk/internal/mint"
	"github.com/mintdesk/mintdesk/internal/model"
	"github.com/mintdesk/mintdesk/internal/repository"
	"github.com/mintdesk/mintdesk/internal/service"
)

func TestMintHandler_Submit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		account       string
		body          string
		minter        *fakeMinter
		wantStatus    int
		wantCode      string
		wantState     string
		wantExplorer  string
		wantRecipient model.Address
	}{
		{
			name:          "success to connected account",
			account:       testAccount,
			body:          `{}`,
			minter:        &fakeMinter{enabled: true, result: model.SuccessOutcome("0xabc")},
			wantStatus:    http.StatusOK,
			wantState:     "success",
			wantExplorer:  "/blockexplorer/transaction/0xabc",
			wantRecipient: testAccount,
		},
		{
			name:          "empty body mints to connected account",
			account:       testAccount,
			body:          ``,
			minter:        &fakeMinter{enabled: true, result: model.SuccessOutcome("0x1")},
			wantStatus:    http.StatusOK,
			wantState:     "success",
			wantExplorer:  "/blockexplorer/transaction/0x1",
			wantRecipient: testAccount,
		},
		{
			name:          "explicit recipient is normalized",
			account:       "",
			body:          `{"recipient":"` + strings.ToLower(testRecipient) + `"}`,
			minter:        &fakeMinter{enabled: true, result: model.SuccessOutcome("0x2")},
			wantStatus:    http.StatusOK,
			wantState:     "success",
			wantExplorer:  "/blockexplorer/transaction/0x2",
			wantRecipient: testRecipient,
		},
		{
			name:          "settled failure is still 200",
			account:       testAccount,
			body:          `{}`,
			minter:        &fakeMinter{enabled: true, result: model.FailureOutcome(model.MintRejectedMessage)},
			wantStatus:    http.StatusOK,
			wantState:     "failure",
			wantRecipient: testAccount,
		},
		{
			name:       "pending guard",
			account:    testAccount,
			body:       `{}`,
			minter:     &fakeMinter{enabled: true, err: mint.ErrPending},
			wantStatus: http.StatusConflict,
			wantCode:   "MINT_PENDING",
		},
		{
			name:       "disabled",
			account:    testAccount,
			body:       `{}`,
			minter:     &fakeMinter{err: mint.ErrDisabled},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "MINT_DISABLED",
		},
		{
			name:       "no account and no recipient",
			body:       `{}`,
			minter:     &fakeMinter{enabled: true},
			wantStatus: http.StatusBadRequest,
			wantCode:   "NO_ACCOUNT",
		},
		{
			name:       "bad recipient",
			account:    testAccount,
			body:       `{"recipient":"0xnothex"}`,
			minter:     &fakeMinter{enabled: true},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_ADDRESS",
		},
		{
			name:       "bad json",
			account:    testAccount,
			body:       `{"recipient":`,
			minter:     &fakeMinter{enabled: true},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_JSON",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewMintHandler(tt.minter, newSession(t, tt.account), nil, discardLogger())
			rec := httptest.NewRecorder()
			h.Submit(rec, httptest.NewRequest(http.MethodPost, "/api/v1/mint", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCode != "" {
				if got := decodeError(t, rec).Code; got != tt.wantCode {
					t.Errorf("code = %q, want %q", got, tt.wantCode)
				}
				return
			}

			var resp dto.MintOutcomeResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.State != tt.wantState || resp.ExplorerURL != tt.wantExplorer {
				t.Errorf("response %+v", resp)
			}
			if len(tt.minter.received) != 1 || tt.minter.received[0].Recipient != tt.wantRecipient {
				t.Errorf("minter received %+v, want recipient %s", tt.minter.received, tt.wantRecipient)
			}
		})
	}
}

func TestMintHandler_Get(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		outcome model.MintOutcome
		want    dto.MintOutcomeResponse
	}{
		{"idle", model.IdleOutcome(), dto.MintOutcomeResponse{State: "idle", Enabled: true}},
		{"pending", model.PendingOutcome(), dto.MintOutcomeResponse{State: "pending", Enabled: true}},
		{"success", model.SuccessOutcome("0xfeed"), dto.MintOutcomeResponse{
			State: "success", TxHash: "0xfeed", ExplorerURL: "/blockexplorer/transaction/0xfeed", Enabled: true,
		}},
		{"failure", model.FailureOutcome("execution reverted"), dto.MintOutcomeResponse{
			State: "failure", Message: "execution reverted", Enabled: true,
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewMintHandler(&fakeMinter{enabled: true, outcome: tt.outcome}, newSession(t, ""), nil, discardLogger())
			rec := httptest.NewRecorder()
			h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/mint", nil))

			var got dto.MintOutcomeResponse
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMintHandler_List(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	history := &fakeHistory{
		attempts: []*model.MintAttempt{
			{ID: "01B", Contract: "NFTContract", Recipient: testAccount, Status: model.MintStatusSuccess, TxHash: "0xbb", CreatedAt: created},
			{ID: "01A", Contract: "NFTContract", Recipient: testAccount, Status: model.MintStatusFailure, Error: "rejected", CreatedAt: created},
		},
		next: "cursor-2",
	}
	h := NewMintHandler(&fakeMinter{}, newSession(t, ""), history, discardLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/mints?limit=2&status=success&recipient="+strings.ToLower(testAccount), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if history.got.Limit != 2 || history.got.Status != "success" || history.got.Recipient != testAccount {
		t.Errorf("service input %+v", history.got)
	}

	var resp dto.MintAttemptListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 || !resp.Pagination.HasMore || resp.Pagination.NextCursor != "cursor-2" {
		t.Fatalf("unexpected page %+v", resp)
	}
	if resp.Data[0].ExplorerURL != "/blockexplorer/transaction/0xbb" {
		t.Errorf("explorer url = %q", resp.Data[0].ExplorerURL)
	}
	if resp.Data[1].ExplorerURL != "" || resp.Data[1].Error != "rejected" {
		t.Errorf("failure row %+v", resp.Data[1])
	}
}

func TestMintHandler_ListErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		history    MintHistory
		query      string
		wantStatus int
		wantCode   string
	}{
		{"no database", nil, "", http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE"},
		{"non numeric limit", &fakeHistory{}, "?limit=ten", http.StatusBadRequest, "INVALID_LIMIT"},
		{"limit out of range", &fakeHistory{err: service.ErrInvalidLimit}, "?limit=500", http.StatusBadRequest, "INVALID_LIMIT"},
		{"bad status", &fakeHistory{err: service.ErrInvalidStatus}, "?status=lost", http.StatusBadRequest, "INVALID_STATUS"},
		{"bad cursor", &fakeHistory{err: repository.ErrInvalidCursor}, "?cursor=zzz", http.StatusBadRequest, "INVALID_CURSOR"},
		{"bad recipient", &fakeHistory{}, "?recipient=bob", http.StatusBadRequest, "INVALID_ADDRESS"},
		{"store failure", &fakeHistory{err: errors.New("conn reset")}, "", http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewMintHandler(&fakeMinter{}, newSession(t, ""), tt.history, discardLogger())
			rec := httptest.NewRecorder()
			h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/mints"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decodeError(t, rec).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}
