package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mintdesk/mintdesk/internal/explorer"
	"github.com/mintdesk/mintdesk/internal/metrics"
	"github.com/mintdesk/mintdesk/internal/model"
)

var (
	ErrQueueFull       = errors.New("webhook queue full")
	ErrDeliveryFailed  = errors.New("webhook delivery failed")
	ErrNotifierStopped = errors.New("webhook notifier stopped")
)

// EventMintSucceeded is sent once per successful mint.
const EventMintSucceeded = "mint.succeeded"

// DefaultQueueSize bounds notifications waiting for delivery.
const DefaultQueueSize = 64

// Payload is the JSON body POSTed to the webhook endpoint.
type Payload struct {
	EventType string            `json:"event_type"`
	EventID   string            `json:"event_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      MintSucceededData `json:"data"`
}

// MintSucceededData describes the settled mint.
type MintSucceededData struct {
	Contract        string `json:"contract"`
	ContractAddress string `json:"contract_address,omitempty"`
	Recipient       string `json:"recipient"`
	TxHash          string `json:"tx_hash"`
	ExplorerURL     string `json:"explorer_url"`
}

// Config configures a Notifier.
type Config struct {
	TargetURL       string
	Secret          string
	Contract        string
	ContractAddress string
	QueueSize       int
	MaxAttempts     int
	// AllowLocal lets the default client reach loopback and private
	// addresses. Development only.
	AllowLocal bool
}

// Notifier queues mint notifications and delivers them from Run.
type Notifier struct {
	cfg     Config
	client  *http.Client
	logger  *slog.Logger
	metrics metrics.Recorder
	queue   chan Payload
	now     func() time.Time
	wait    func(ctx context.Context, d time.Duration) error
}

// NewNotifier creates a Notifier. A nil client uses NewHTTPClient(cfg.AllowLocal).
func NewNotifier(cfg Config, client *http.Client, logger *slog.Logger, recorder metrics.Recorder) *Notifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if client == nil {
		client = NewHTTPClient(cfg.AllowLocal)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Notifier{
		cfg:     cfg,
		client:  client,
		logger:  logger.With("component", "webhook.notifier"),
		metrics: recorder,
		queue:   make(chan Payload, cfg.QueueSize),
		now:     time.Now,
		wait:    sleepContext,
	}
}

// MintSucceeded queues a mint.succeeded notification. It never blocks; a full
// queue drops the notification with a warning.
func (n *Notifier) MintSucceeded(_ context.Context, req model.MintRequest, txHash string) {
	p := Payload{
		EventType: EventMintSucceeded,
		EventID:   ulid.Make().String(),
		Timestamp: n.now().UTC(),
		Data: MintSucceededData{
			Contract:        n.cfg.Contract,
			ContractAddress: n.cfg.ContractAddress,
			Recipient:       req.Recipient.String(),
			TxHash:          txHash,
			ExplorerURL:     explorer.ResolveExplorerURL(txHash),
		},
	}
	if err := n.Enqueue(p); err != nil {
		n.metrics.IncWebhookDelivery(metrics.StatusFailure)
		n.logger.Warn("webhook notification dropped",
			"event_id", p.EventID,
			"tx_hash", txHash,
			"error", err,
		)
	}
}

// Enqueue adds p to the delivery queue.
func (n *Notifier) Enqueue(p Payload) error {
	select {
	case n.queue <- p:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued notifications until ctx is cancelled. Deliveries run
// one at a time in queue order.
func (n *Notifier) Run(ctx context.Context) error {
	n.logger.Info("webhook notifier started", "target_host", ExtractHost(n.cfg.TargetURL))
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("webhook notifier stopping", "pending", len(n.queue))
			return nil
		case p := <-n.queue:
			if err := n.deliver(ctx, p); err != nil {
				n.logger.Warn("webhook delivery abandoned",
					"event_id", p.EventID,
					"tx_hash", p.Data.TxHash,
					"error", err,
				)
			}
		}
	}
}

// deliver sends p, retrying transient failures on the jittered schedule.
func (n *Notifier) deliver(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	for attempt := 1; ; attempt++ {
		status, err := n.send(ctx, p, body)
		if err == nil {
			n.metrics.IncWebhookDelivery(metrics.StatusSuccess)
			n.logger.Info("webhook delivered",
				"event_id", p.EventID,
				"target_host", ExtractHost(n.cfg.TargetURL),
				"http_status", status,
				"attempt", attempt,
			)
			return nil
		}

		n.metrics.IncWebhookDelivery(metrics.StatusFailure)
		exhausted := IsExhausted(attempt, n.cfg.MaxAttempts) || (status != 0 && !retryable(status))
		n.logger.Warn("webhook delivery failed",
			"event_id", p.EventID,
			"attempt", attempt,
			"http_status", status,
			"exhausted", exhausted,
			"error", err,
		)
		if exhausted {
			return fmt.Errorf("%w after %d attempts: %v", ErrDeliveryFailed, attempt, err)
		}

		if err := n.wait(ctx, NextRetryDelay(attempt-1)); err != nil {
			return ErrNotifierStopped
		}
	}
}

// send makes one delivery attempt. status is 0 when no response arrived.
func (n *Notifier) send(ctx context.Context, p Payload, body []byte) (int, error) {
	req, err := newDeliveryRequest(ctx, n.cfg.TargetURL, n.cfg.Secret, p, body, n.now())
	if err != nil {
		return 0, err
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
