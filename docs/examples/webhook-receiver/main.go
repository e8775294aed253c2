// Command webhook-receiver accepts mintdesk mint.succeeded webhooks,
// verifies their signature and logs each mint once.
//
//	MINT_WEBHOOK_SECRET=... LISTEN_ADDR=:9000 go run .
//
// Point the server at it with MINT_WEBHOOK_URL=http://<host>:9000/webhook.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

const (
	maxBody      = 64 << 10
	replayWindow = 5 * time.Minute
)

type mintEvent struct {
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      struct {
		Contract        string `json:"contract"`
		ContractAddress string `json:"contract_address"`
		Recipient       string `json:"recipient"`
		TxHash          string `json:"tx_hash"`
		ExplorerURL     string `json:"explorer_url"`
	} `json:"data"`
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	secret := os.Getenv("MINT_WEBHOOK_SECRET")
	if secret == "" {
		log.Error("MINT_WEBHOOK_SECRET is required")
		os.Exit(1)
	}
	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":9000"
	}

	rcv := &receiver{secret: []byte(secret), log: log, seen: make(map[string]time.Time)}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", rcv.handle)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	log.Info("listening", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

type receiver struct {
	secret []byte
	log    *slog.Logger

	mu   sync.Mutex
	seen map[string]time.Time // delivery id -> first seen
}

func (rc *receiver) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	err = rc.verify(r.Header.Get("X-Mintdesk-Timestamp"), r.Header.Get("X-Mintdesk-Signature"), body, time.Now())
	if err != nil {
		rc.log.Warn("rejected delivery", "error", err)
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	// Retries reuse the delivery id; acknowledge them without reprocessing.
	if id := r.Header.Get("X-Mintdesk-Delivery-Id"); rc.duplicate(id) {
		rc.log.Info("duplicate delivery", "delivery_id", id)
		w.WriteHeader(http.StatusOK)
		return
	}

	var ev mintEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	rc.log.Info("mint received",
		"event", ev.EventType,
		"contract", ev.Data.Contract,
		"recipient", ev.Data.Recipient,
		"tx_hash", ev.Data.TxHash,
		"explorer", ev.Data.ExplorerURL,
	)
	w.WriteHeader(http.StatusNoContent)
}

// verify checks the hex HMAC-SHA256 of "<timestamp>.<body>".
func (rc *receiver) verify(timestamp, signature string, body []byte, now time.Time) error {
	if timestamp == "" || signature == "" {
		return errors.New("missing signature headers")
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return errors.New("bad timestamp")
	}
	if d := now.Sub(time.Unix(ts, 0)); d > replayWindow || d < -replayWindow {
		return errors.New("timestamp outside replay window")
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return errors.New("bad signature encoding")
	}

	mac := hmac.New(sha256.New, rc.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return errors.New("signature mismatch")
	}
	return nil
}

// duplicate records id and reports whether it was already seen. Entries
// older than the replay window are dropped, since a replay that old fails
// verification anyway.
func (rc *receiver) duplicate(id string) bool {
	if id == "" {
		return false
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now := time.Now()
	for k, at := range rc.seen {
		if now.Sub(at) > replayWindow {
			delete(rc.seen, k)
		}
	}
	if _, ok := rc.seen[id]; ok {
		return true
	}
	rc.seen[id] = now
	return false
}
