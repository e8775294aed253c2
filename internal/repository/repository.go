// Package repository is the Postgres ledger of mint attempts.
package repository

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

var ErrInvalidCursor = errors.New("invalid pagination cursor")

type Repository struct {
	pool *pgxpool.Pool
}

// Pool sizing for the ledger: at most one insert and one update per mint,
// plus history reads.
const (
	maxConns          = 5
	minConns          = 1
	maxConnIdleTime   = 10 * time.Minute
	healthCheckPeriod = time.Minute
)

// New opens a pool on databaseURL and pings it. Pool settings given in the
// URL (pool_max_conns and friends) override the defaults above.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if !strings.Contains(databaseURL, "pool_max_conns") {
		cfg.MaxConns = maxConns
	}
	if !strings.Contains(databaseURL, "pool_min_conns") {
		cfg.MinConns = minConns
	}
	cfg.MaxConnIdleTime = maxConnIdleTime
	cfg.HealthCheckPeriod = healthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewWithPool(pool), nil
}

func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Close() {
	r.pool.Close()
}

// PaginationCursor marks the last row of a page in (created_at, id) order.
type PaginationCursor struct {
	ID        string
	CreatedAt time.Time
}

// Cursors travel as unpadded base64url of "<unix micros>:<ulid>".
func encodeCursor(c *PaginationCursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixMicro(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (*PaginationCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	micros, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, errors.New("cursor: missing separator")
	}
	us, err := strconv.ParseInt(micros, 10, 64)
	if err != nil || us <= 0 {
		return nil, errors.New("cursor: bad timestamp")
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	return &PaginationCursor{ID: id, CreatedAt: time.UnixMicro(us).UTC()}, nil
}
