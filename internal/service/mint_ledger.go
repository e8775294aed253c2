package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mintdesk/mintdesk/internal/model"
	"github.com/mintdesk/mintdesk/internal/repository"
)

// Ledger errors.
var (
	ErrInvalidStatus = errors.New("invalid mint status")
	ErrInvalidLimit  = errors.New("limit must be between 1 and 100")
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// MintStore persists mint attempts.
type MintStore interface {
	CreateMintAttempt(ctx context.Context, attempt *model.MintAttempt) error
	SettleMintAttempt(ctx context.Context, id string, status model.MintStatus, txHash, errMsg string, settledAt time.Time) error
	ListMintAttempts(ctx context.Context, filter repository.MintAttemptFilter, cursor string, limit int) ([]*model.MintAttempt, string, error)
}

// MintLedger records every mint submission that passed the pending guard.
type MintLedger struct {
	store MintStore
	now   func() time.Time
}

// NewMintLedger creates a MintLedger.
func NewMintLedger(store MintStore) *MintLedger {
	return &MintLedger{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Begin records a pending attempt and returns its id.
func (l *MintLedger) Begin(ctx context.Context, contractName string, req model.MintRequest) (string, error) {
	attempt := &model.MintAttempt{
		ID:        ulid.Make().String(),
		Contract:  contractName,
		Recipient: req.Recipient.String(),
		Status:    model.MintStatusPending,
		CreatedAt: l.now(),
	}
	if err := l.store.CreateMintAttempt(ctx, attempt); err != nil {
		return "", fmt.Errorf("record mint attempt: %w", err)
	}
	return attempt.ID, nil
}

// Settle records the outcome of attempt id.
func (l *MintLedger) Settle(ctx context.Context, id string, outcome model.MintOutcome) error {
	if !outcome.IsSettled() {
		return fmt.Errorf("settle %s: outcome %q is not settled", id, outcome.State)
	}
	err := l.store.SettleMintAttempt(ctx, id, model.StatusFromOutcome(outcome), outcome.TxHash, outcome.Message, l.now())
	if err != nil {
		return fmt.Errorf("settle mint attempt: %w", err)
	}
	return nil
}

// ListMintsInput defines input for listing attempts.
type ListMintsInput struct {
	Recipient string
	Status    string
	Cursor    string
	Limit     int
}

// List returns recorded attempts newest first and the next page cursor.
func (l *MintLedger) List(ctx context.Context, input ListMintsInput) ([]*model.MintAttempt, string, error) {
	limit := input.Limit
	if limit == 0 {
		limit = defaultListLimit
	}
	if limit < 1 || limit > maxListLimit {
		return nil, "", ErrInvalidLimit
	}

	filter := repository.MintAttemptFilter{Recipient: input.Recipient}
	if input.Status != "" {
		status := model.MintStatus(input.Status)
		switch status {
		case model.MintStatusPending, model.MintStatusSuccess, model.MintStatusFailure:
			filter.Statuses = []model.MintStatus{status}
		default:
			return nil, "", ErrInvalidStatus
		}
	}

	return l.store.ListMintAttempts(ctx, filter, input.Cursor, limit)
}
