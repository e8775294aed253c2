// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/mintdesk/mintdesk/internal/cache"
	"github.com/mintdesk/mintdesk/internal/contract"
	"github.com/mintdesk/mintdesk/internal/metrics"
	"github.com/mintdesk/mintdesk/internal/model"
)

// TokenCache is the subset of the Redis cache the reader needs.
type TokenCache interface {
	GetTokenURI(ctx context.Context, contract, tokenID string) (string, error)
	SetTokenURI(ctx context.Context, contract, tokenID, uri string, ttl time.Duration) error
	GetOwnedTokens(ctx context.Context, contract, owner string) ([]string, error)
	SetOwnedTokens(ctx context.Context, contract, owner string, ids []string, ttl time.Duration) error
	DeleteOwnedTokens(ctx context.Context, contract string, owners ...string) error
}

// TokenReaderConfig holds cache TTLs.
type TokenReaderConfig struct {
	// Contract namespaces cache keys; use the contract address.
	Contract       string
	TokenURITTL    time.Duration
	OwnedTokensTTL time.Duration
}

// TokenReader is a cache-first contract.Reader. Cache failures fall through
// to the chain; chain failures are never cached.
type TokenReader struct {
	reader  contract.Reader
	cache   TokenCache
	cfg     TokenReaderConfig
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time

	mu       sync.Mutex
	bypassed map[string]time.Time // lowercased owner -> until
}

// NewTokenReader wraps reader. A nil cache disables caching.
func NewTokenReader(reader contract.Reader, c TokenCache, cfg TokenReaderConfig, logger *slog.Logger, recorder metrics.Recorder) *TokenReader {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &TokenReader{
		reader:  reader,
		cache:   c,
		cfg:     cfg,
		logger:   logger.With("component", "token_reader"),
		metrics:  recorder,
		now:      time.Now,
		bypassed: make(map[string]time.Time),
	}
}

// TokensOfOwner returns the owned ids of owner.
func (r *TokenReader) TokensOfOwner(ctx context.Context, owner model.Address) ([]*big.Int, error) {
	if r.cache == nil || r.cfg.OwnedTokensTTL <= 0 || r.isBypassed(owner) {
		return r.reader.TokensOfOwner(ctx, owner)
	}

	cached, err := r.cache.GetOwnedTokens(ctx, r.cfg.Contract, owner.String())
	if err == nil {
		if ids, ok := parseTokenIDs(cached); ok {
			r.metrics.IncOwnedTokensCacheHit()
			return ids, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn("owned tokens cache read failed", "error", err)
	}
	r.metrics.IncOwnedTokensCacheMiss()

	ids, err := r.reader.TokensOfOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != nil {
			strs = append(strs, id.String())
		}
	}
	if err := r.cache.SetOwnedTokens(ctx, r.cfg.Contract, owner.String(), strs, r.cfg.OwnedTokensTTL); err != nil {
		r.logger.Warn("owned tokens cache write failed", "error", err)
	}
	return ids, nil
}

// TokenURI returns the tokenURI of id.
func (r *TokenReader) TokenURI(ctx context.Context, id *big.Int) (string, error) {
	if r.cache == nil || r.cfg.TokenURITTL <= 0 || id == nil {
		return r.reader.TokenURI(ctx, id)
	}
	key := id.String()

	uri, err := r.cache.GetTokenURI(ctx, r.cfg.Contract, key)
	if err == nil {
		r.metrics.IncTokenURICacheHit()
		return uri, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn("token uri cache read failed", "token_id", key, "error", err)
	}
	r.metrics.IncTokenURICacheMiss()

	uri, err = r.reader.TokenURI(ctx, id)
	if err != nil {
		return "", err
	}
	if err := r.cache.SetTokenURI(ctx, r.cfg.Contract, key, uri, r.cfg.TokenURITTL); err != nil {
		r.logger.Warn("token uri cache write failed", "token_id", key, "error", err)
	}
	return uri, nil
}

// InvalidateOwner drops cached owned sets so the next read goes to the chain.
func (r *TokenReader) InvalidateOwner(ctx context.Context, owners ...model.Address) error {
	if r.cache == nil || len(owners) == 0 {
		return nil
	}
	keys := make([]string, 0, len(owners))
	for _, owner := range owners {
		if owner != "" {
			keys = append(keys, owner.String())
		}
	}
	if err := r.cache.DeleteOwnedTokens(ctx, r.cfg.Contract, keys...); err != nil {
		return fmt.Errorf("invalidate owned tokens: %w", err)
	}
	return nil
}

// Bypass sends owned-set reads for owners straight to the chain, without
// reading or writing the cache, until d has passed. A refresh right after a
// broadcast would otherwise cache the set from before inclusion.
func (r *TokenReader) Bypass(d time.Duration, owners ...model.Address) {
	if r.cache == nil || d <= 0 {
		return
	}
	until := r.now().Add(d)

	r.mu.Lock()
	defer r.mu.Unlock()
	for owner, end := range r.bypassed {
		if !r.now().Before(end) {
			delete(r.bypassed, owner)
		}
	}
	for _, owner := range owners {
		if owner != "" {
			r.bypassed[strings.ToLower(owner.String())] = until
		}
	}
}

func (r *TokenReader) isBypassed(owner model.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.bypassed[strings.ToLower(owner.String())]
	return ok && r.now().Before(until)
}

func parseTokenIDs(strs []string) ([]*big.Int, bool) {
	ids := make([]*big.Int, 0, len(strs))
	for _, s := range strs {
		n, ok := model.TokenID(s).Big()
		if !ok {
			return nil, false
		}
		ids = append(ids, n)
	}
	return ids, true
}
