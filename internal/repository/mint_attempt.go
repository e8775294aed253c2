package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/mintdesk/mintdesk/internal/model"
)

// ErrMintAttemptNotFound is returned when no pending attempt matches.
var ErrMintAttemptNotFound = errors.New("mint attempt not found")

// MintAttemptFilter narrows ListMintAttempts. Zero values match everything.
type MintAttemptFilter struct {
	Recipient string
	Statuses  []model.MintStatus
}

const mintAttemptColumns = `id, contract, recipient, status, tx_hash, error, created_at, settled_at`

// CreateMintAttempt inserts a pending attempt.
func (r *Repository) CreateMintAttempt(ctx context.Context, attempt *model.MintAttempt) error {
	query := `
		INSERT INTO mint_attempts (id, contract, recipient, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		attempt.ID,
		attempt.Contract,
		attempt.Recipient,
		attempt.Status,
		attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create mint attempt: %w", err)
	}
	return nil
}

// SettleMintAttempt records the result of a pending attempt.
// Settled attempts are never rewritten.
func (r *Repository) SettleMintAttempt(ctx context.Context, id string, status model.MintStatus, txHash, errMsg string, settledAt time.Time) error {
	query := `
		UPDATE mint_attempts
		SET status = $2, tx_hash = NULLIF($3, ''), error = NULLIF($4, ''), settled_at = $5
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.pool.Exec(ctx, query, id, status, txHash, errMsg, settledAt)
	if err != nil {
		return fmt.Errorf("failed to settle mint attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMintAttemptNotFound
	}
	return nil
}

// GetMintAttempt retrieves one attempt by id.
func (r *Repository) GetMintAttempt(ctx context.Context, id string) (*model.MintAttempt, error) {
	query := `SELECT ` + mintAttemptColumns + ` FROM mint_attempts WHERE id = $1`

	attempt, err := scanMintAttempt(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMintAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get mint attempt: %w", err)
	}
	return attempt, nil
}

// ListMintAttempts returns attempts newest first with keyset pagination.
func (r *Repository) ListMintAttempts(ctx context.Context, filter MintAttemptFilter, cursor string, limit int) ([]*model.MintAttempt, string, error) {
	var cursorData *PaginationCursor
	if cursor != "" {
		var err error
		cursorData, err = decodeCursor(cursor)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
	}

	query, args := buildListMintAttemptsQuery(filter, cursorData, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list mint attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*model.MintAttempt
	for rows.Next() {
		attempt, err := scanMintAttempt(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan mint attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating mint attempts: %w", err)
	}

	var nextCursor string
	if len(attempts) > limit {
		attempts = attempts[:limit]
		last := attempts[len(attempts)-1]
		nextCursor = encodeCursor(&PaginationCursor{ID: last.ID, CreatedAt: last.CreatedAt})
	}

	return attempts, nextCursor, nil
}

func buildListMintAttemptsQuery(filter MintAttemptFilter, cursor *PaginationCursor, limit int) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Recipient != "" {
		where = append(where, "LOWER(recipient) = LOWER("+arg(filter.Recipient)+")")
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, "status = ANY("+arg(pq.Array(statuses))+")")
	}
	if cursor != nil {
		createdAt := arg(cursor.CreatedAt)
		id := arg(cursor.ID)
		where = append(where, "(created_at, id) < ("+createdAt+", "+id+")")
	}

	query := `SELECT ` + mintAttemptColumns + ` FROM mint_attempts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	// Fetch one extra to determine hasMore
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + arg(limit+1)

	return query, args
}

func scanMintAttempt(row pgx.Row) (*model.MintAttempt, error) {
	var (
		a      model.MintAttempt
		txHash *string
		errMsg *string
	)
	err := row.Scan(
		&a.ID,
		&a.Contract,
		&a.Recipient,
		&a.Status,
		&txHash,
		&errMsg,
		&a.CreatedAt,
		&a.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	if txHash != nil {
		a.TxHash = *txHash
	}
	if errMsg != nil {
		a.Error = *errMsg
	}
	return &a, nil
}
