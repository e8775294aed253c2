package mint

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mintdesk/mintdesk/internal/explorer"
	"github.com/mintdesk/mintdesk/internal/metrics"
	"github.com/mintdesk/mintdesk/internal/model"
)

const recipient = model.Address("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

type fakeWriter struct {
	mu      sync.Mutex
	calls   int
	txHash  string
	err     error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeWriter) Mint(ctx context.Context, to model.Address) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.txHash, f.err
}

func (f *fakeWriter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeJournal struct {
	mu       sync.Mutex
	begun    []model.MintRequest
	settled  map[string]model.MintOutcome
	beginErr error
}

func (j *fakeJournal) Begin(ctx context.Context, contractName string, req model.MintRequest) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.beginErr != nil {
		return "", j.beginErr
	}
	j.begun = append(j.begun, req)
	return "attempt-1", nil
}

func (j *fakeJournal) Settle(ctx context.Context, id string, outcome model.MintOutcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.settled == nil {
		j.settled = make(map[string]model.MintOutcome)
	}
	j.settled[id] = outcome
	return nil
}

func newTestController(w *fakeWriter, j Journal, rec metrics.Recorder) *Controller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{ContractName: "NFTContract", Timeout: time.Minute}
	if w == nil {
		return NewController(nil, j, cfg, logger, rec)
	}
	return NewController(w, j, cfg, logger, rec)
}

func TestController_InitialOutcomeIsIdle(t *testing.T) {
	c := newTestController(&fakeWriter{}, nil, nil)
	if got := c.Outcome(); got.State != model.OutcomeIdle {
		t.Fatalf("Outcome() = %+v, want idle", got)
	}
}

func TestController_Success(t *testing.T) {
	w := &fakeWriter{txHash: "0xABC123"}
	rec := metrics.NewInMemory()
	c := newTestController(w, nil, rec)

	outcome, err := c.Submit(context.Background(), model.MintRequest{Recipient: recipient})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	want := model.SuccessOutcome("0xABC123")
	if outcome != want || c.Outcome() != want {
		t.Fatalf("outcome = %+v, want %+v", c.Outcome(), want)
	}
	if got := explorer.ResolveExplorerURL(outcome.TxHash); got != "/blockexplorer/transaction/0xABC123" {
		t.Errorf("explorer url = %q", got)
	}

	snap := rec.Snapshot()
	if snap.MintsSubmitted != 1 || snap.MintsSucceeded != 1 || snap.MintDurationCount != 1 {
		t.Errorf("unexpected metrics %+v", snap)
	}
}

func TestController_FailureMessages(t *testing.T) {
	tests := []struct {
		name    string
		txHash  string
		err     error
		wantMsg string
	}{
		{"empty_result", "", nil, "Transaction failed or was rejected."},
		{"error_message", "", errors.New("user rejected the request"), "user rejected the request"},
		{"error_without_message", "", errors.New(""), "An unexpected error occurred."},
		{"error_wins_over_hash", "0xdead", errors.New("nonce too low"), "nonce too low"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			rec := metrics.NewInMemory()
			c := newTestController(&fakeWriter{txHash: test.txHash, err: test.err}, nil, rec)

			outcome, err := c.Submit(context.Background(), model.MintRequest{Recipient: recipient})
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			want := model.FailureOutcome(test.wantMsg)
			if outcome != want || c.Outcome() != want {
				t.Fatalf("outcome = %+v, want %+v", c.Outcome(), want)
			}
			if rec.Snapshot().MintsFailed != 1 {
				t.Errorf("expected failure counter")
			}
		})
	}
}

func TestController_PendingGuard(t *testing.T) {
	w := &fakeWriter{
		txHash:  "0xABC123",
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	rec := metrics.NewInMemory()
	c := newTestController(w, nil, rec)

	done := make(chan model.MintOutcome, 1)
	go func() {
		outcome, _ := c.Submit(context.Background(), model.MintRequest{Recipient: recipient})
		done <- outcome
	}()

	select {
	case <-w.entered:
	case <-time.After(time.Second):
		t.Fatal("first submit never reached the writer")
	}

	if got := c.Outcome(); !got.IsPending() {
		t.Fatalf("Outcome() = %+v, want pending", got)
	}

	for i := 0; i < 3; i++ {
		if _, err := c.Submit(context.Background(), model.MintRequest{Recipient: recipient}); !errors.Is(err, ErrPending) {
			t.Fatalf("expected ErrPending, got %v", err)
		}
	}
	if got := c.Outcome(); !got.IsPending() {
		t.Fatalf("guarded submit changed outcome to %+v", got)
	}
	if calls := w.callCount(); calls != 1 {
		t.Fatalf("writer called %d times, want 1", calls)
	}

	close(w.release)
	select {
	case outcome := <-done:
		if outcome.TxHash != "0xABC123" {
			t.Fatalf("outcome = %+v", outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("first submit never settled")
	}

	if got := rec.Snapshot().MintsGuardRejected; got != 3 {
		t.Errorf("MintsGuardRejected = %d, want 3", got)
	}
}

func TestController_NewSubmitClearsPreviousPayload(t *testing.T) {
	w := &fakeWriter{err: errors.New("boom")}
	c := newTestController(w, nil, nil)

	if _, err := c.Submit(context.Background(), model.MintRequest{Recipient: recipient}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if c.Outcome().Message != "boom" {
		t.Fatalf("expected failure message, got %+v", c.Outcome())
	}

	w.err = nil
	w.txHash = "0x01"
	w.entered = make(chan struct{}, 1)
	w.release = make(chan struct{})

	go func() {
		_, _ = c.Submit(context.Background(), model.MintRequest{Recipient: recipient})
	}()
	<-w.entered

	got := c.Outcome()
	if got != model.PendingOutcome() {
		t.Fatalf("Outcome() = %+v, want bare pending", got)
	}
	close(w.release)
}

func TestController_SuccessListeners(t *testing.T) {
	c := newTestController(&fakeWriter{txHash: "0xABC123"}, nil, nil)

	var got []string
	c.OnSuccess(func(ctx context.Context, req model.MintRequest, txHash string) {
		got = append(got, req.Recipient.String()+"|"+txHash)
	})

	if _, err := c.Submit(context.Background(), model.MintRequest{Recipient: recipient}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(got) != 1 || got[0] != recipient.String()+"|0xABC123" {
		t.Fatalf("listener calls = %v", got)
	}
}

func TestController_FailureSkipsListeners(t *testing.T) {
	c := newTestController(&fakeWriter{}, nil, nil)

	called := false
	c.OnSuccess(func(ctx context.Context, req model.MintRequest, txHash string) {
		called = true
	})

	if _, err := c.Submit(context.Background(), model.MintRequest{Recipient: recipient}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if called {
		t.Fatal("listener called for failed mint")
	}
}

func TestController_Disabled(t *testing.T) {
	c := newTestController(nil, nil, nil)

	if c.Enabled() {
		t.Fatal("expected disabled controller")
	}
	if _, err := c.Submit(context.Background(), model.MintRequest{Recipient: recipient}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if c.Outcome().State != model.OutcomeIdle {
		t.Fatalf("disabled submit changed outcome to %+v", c.Outcome())
	}
}

func TestController_Journal(t *testing.T) {
	j := &fakeJournal{}
	c := newTestController(&fakeWriter{txHash: "0xABC123"}, j, nil)

	if _, err := c.Submit(context.Background(), model.MintRequest{Recipient: recipient}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(j.begun) != 1 || j.begun[0].Recipient != recipient {
		t.Fatalf("begun = %+v", j.begun)
	}
	if j.settled["attempt-1"] != model.SuccessOutcome("0xABC123") {
		t.Fatalf("settled = %+v", j.settled)
	}
}

func TestController_JournalFailureDoesNotAffectOutcome(t *testing.T) {
	j := &fakeJournal{beginErr: errors.New("db down")}
	c := newTestController(&fakeWriter{txHash: "0xABC123"}, j, nil)

	outcome, err := c.Submit(context.Background(), model.MintRequest{Recipient: recipient})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if outcome != model.SuccessOutcome("0xABC123") {
		t.Fatalf("outcome = %+v", outcome)
	}
	if len(j.settled) != 0 {
		t.Fatalf("expected no settle without an attempt id, got %+v", j.settled)
	}
}

func TestController_CallerCancellationDoesNotFailMint(t *testing.T) {
	w := &fakeWriter{txHash: "0xABC123"}
	c := newTestController(w, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := c.Submit(ctx, model.MintRequest{Recipient: recipient})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if outcome.State != model.OutcomeSuccess {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
}
