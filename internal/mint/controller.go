// Package mint drives the lifecycle of a single in-flight mint transaction.
package mint

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mintdesk/mintdesk/internal/contract"
	"github.com/mintdesk/mintdesk/internal/metrics"
	"github.com/mintdesk/mintdesk/internal/model"
)

// Controller errors.
var (
	ErrPending  = errors.New("a mint is already pending")
	ErrDisabled = errors.New("minting is disabled")
)

// Journal records mint attempts. Journal failures never change an outcome.
type Journal interface {
	Begin(ctx context.Context, contractName string, req model.MintRequest) (string, error)
	Settle(ctx context.Context, id string, outcome model.MintOutcome) error
}

// SuccessFunc is called after a mint settles as Success.
type SuccessFunc func(ctx context.Context, req model.MintRequest, txHash string)

// Config configures a Controller.
type Config struct {
	ContractName string
	// Timeout bounds one write call including the receipt wait. Zero means no
	// bound beyond the caller's context.
	Timeout time.Duration
}

// Controller owns the single live MintOutcome.
type Controller struct {
	writer  contract.Writer
	journal Journal
	cfg     Config
	logger  *slog.Logger
	metrics metrics.Recorder

	mu        sync.Mutex
	outcome   model.MintOutcome
	listeners []SuccessFunc
}

// NewController creates a Controller. A nil writer yields a controller that
// rejects every submission with ErrDisabled. journal may be nil.
func NewController(writer contract.Writer, journal Journal, cfg Config, logger *slog.Logger, recorder metrics.Recorder) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Controller{
		writer:  writer,
		journal: journal,
		cfg:     cfg,
		logger:  logger.With("component", "mint_controller"),
		metrics: recorder,
		outcome: model.IdleOutcome(),
	}
}

// Enabled reports whether the controller can submit.
func (c *Controller) Enabled() bool {
	return c.writer != nil
}

// Outcome returns the current outcome.
func (c *Controller) Outcome() model.MintOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// OnSuccess registers fn to run after every successful mint.
func (c *Controller) OnSuccess(fn SuccessFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Submit sends a mint to req.Recipient and blocks until it settles.
//
// While a previous submission is pending Submit returns ErrPending and neither
// the outcome nor the contract is touched. Otherwise the outcome moves to
// Pending immediately, dropping any earlier hash or message, and the settled
// outcome is returned. The write call is detached from ctx cancellation so a
// caller going away does not turn a broadcast transaction into a Failure.
func (c *Controller) Submit(ctx context.Context, req model.MintRequest) (model.MintOutcome, error) {
	if c.writer == nil {
		return model.MintOutcome{}, ErrDisabled
	}

	c.mu.Lock()
	if c.outcome.IsPending() {
		c.mu.Unlock()
		c.metrics.IncMintGuardRejected()
		return model.MintOutcome{}, ErrPending
	}
	c.outcome = model.PendingOutcome()
	c.mu.Unlock()

	c.metrics.IncMintSubmitted()
	start := time.Now()

	callCtx := context.WithoutCancel(ctx)
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, c.cfg.Timeout)
		defer cancel()
	}

	attemptID := c.begin(callCtx, req)

	outcome := c.send(callCtx, req)
	afterCtx := context.WithoutCancel(callCtx)

	c.mu.Lock()
	c.outcome = outcome
	listeners := append([]SuccessFunc(nil), c.listeners...)
	c.mu.Unlock()

	c.metrics.ObserveMintDuration(time.Since(start))
	c.settle(afterCtx, attemptID, outcome)

	if outcome.State == model.OutcomeSuccess {
		c.metrics.IncMintResult(metrics.StatusSuccess)
		c.logger.Info("mint succeeded",
			"recipient", req.Recipient.String(),
			"tx_hash", outcome.TxHash,
		)
		for _, fn := range listeners {
			fn(afterCtx, req, outcome.TxHash)
		}
	} else {
		c.metrics.IncMintResult(metrics.StatusFailure)
	}

	return outcome, nil
}

func (c *Controller) send(ctx context.Context, req model.MintRequest) model.MintOutcome {
	txHash, err := c.writer.Mint(ctx, req.Recipient)
	if err != nil {
		c.logger.Error("mint failed",
			"recipient", req.Recipient.String(),
			"error", err,
		)
		return model.FailureOutcome(err.Error())
	}
	if txHash == "" {
		c.logger.Warn("mint returned no transaction", "recipient", req.Recipient.String())
		return model.FailureOutcome(model.MintRejectedMessage)
	}
	return model.SuccessOutcome(txHash)
}

func (c *Controller) begin(ctx context.Context, req model.MintRequest) string {
	if c.journal == nil {
		return ""
	}
	id, err := c.journal.Begin(ctx, c.cfg.ContractName, req)
	if err != nil {
		c.logger.Warn("failed to record mint attempt", "error", err)
		return ""
	}
	return id
}

func (c *Controller) settle(ctx context.Context, id string, outcome model.MintOutcome) {
	if c.journal == nil || id == "" {
		return
	}
	if err := c.journal.Settle(ctx, id, outcome); err != nil {
		c.logger.Warn("failed to settle mint attempt",
			"attempt_id", id,
			"error", err,
		)
	}
}
