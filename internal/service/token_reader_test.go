package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/mintdesk/mintdesk/internal/cache"
	"github.com/mintdesk/mintdesk/internal/metrics"
	"github.com/mintdesk/mintdesk/internal/model"
)

const (
	contractAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	owner        = model.Address("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

type stubReader struct {
	mu        sync.Mutex
	owned     []*big.Int
	uri       string
	err       error
	enumCalls int
	uriCalls  int
}

func (s *stubReader) TokensOfOwner(ctx context.Context, o model.Address) ([]*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enumCalls++
	return s.owned, s.err
}

func (s *stubReader) TokenURI(ctx context.Context, id *big.Int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uriCalls++
	return s.uri, s.err
}

// memCache is an in-process TokenCache.
type memCache struct {
	mu    sync.Mutex
	uris  map[string]string
	owned map[string][]string
	err   error
}

func newMemCache() *memCache {
	return &memCache{uris: map[string]string{}, owned: map[string][]string{}}
}

func (m *memCache) GetTokenURI(ctx context.Context, contract, tokenID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	uri, ok := m.uris[contract+"/"+tokenID]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return uri, nil
}

func (m *memCache) SetTokenURI(ctx context.Context, contract, tokenID, uri string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.uris[contract+"/"+tokenID] = uri
	return nil
}

func (m *memCache) GetOwnedTokens(ctx context.Context, contract, o string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	ids, ok := m.owned[contract+"/"+o]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return ids, nil
}

func (m *memCache) SetOwnedTokens(ctx context.Context, contract, o string, ids []string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.owned[contract+"/"+o] = ids
	return nil
}

func (m *memCache) DeleteOwnedTokens(ctx context.Context, contract string, owners ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range owners {
		delete(m.owned, contract+"/"+o)
	}
	return nil
}

func newTestTokenReader(r *stubReader, c TokenCache, rec metrics.Recorder) *TokenReader {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := TokenReaderConfig{Contract: contractAddr, TokenURITTL: time.Hour, OwnedTokensTTL: time.Minute}
	return NewTokenReader(r, c, cfg, logger, rec)
}

func TestTokenReader_TokenURICachesAfterMiss(t *testing.T) {
	r := &stubReader{uri: `{"image":"<svg/>"}`}
	rec := metrics.NewInMemory()
	tr := newTestTokenReader(r, newMemCache(), rec)

	for i := 0; i < 3; i++ {
		uri, err := tr.TokenURI(context.Background(), big.NewInt(5))
		if err != nil {
			t.Fatalf("TokenURI: %v", err)
		}
		if uri != r.uri {
			t.Fatalf("TokenURI = %q", uri)
		}
	}

	if r.uriCalls != 1 {
		t.Errorf("chain calls = %d, want 1", r.uriCalls)
	}
	snap := rec.Snapshot()
	if snap.TokenURICacheMisses != 1 || snap.TokenURICacheHits != 2 {
		t.Errorf("cache hits/misses = %d/%d, want 2/1", snap.TokenURICacheHits, snap.TokenURICacheMisses)
	}
}

func TestTokenReader_ChainErrorsNotCached(t *testing.T) {
	r := &stubReader{err: errors.New("rpc down")}
	c := newMemCache()
	tr := newTestTokenReader(r, c, nil)

	if _, err := tr.TokenURI(context.Background(), big.NewInt(1)); err == nil {
		t.Fatal("expected error")
	}
	if _, err := tr.TokensOfOwner(context.Background(), owner); err == nil {
		t.Fatal("expected error")
	}
	if len(c.uris) != 0 || len(c.owned) != 0 {
		t.Fatalf("errors were cached: %+v %+v", c.uris, c.owned)
	}
}

func TestTokenReader_CacheErrorsFallThrough(t *testing.T) {
	r := &stubReader{owned: []*big.Int{big.NewInt(1)}, uri: "{}"}
	c := newMemCache()
	c.err = errors.New("connection refused")
	tr := newTestTokenReader(r, c, nil)

	ids, err := tr.TokensOfOwner(context.Background(), owner)
	if err != nil || len(ids) != 1 {
		t.Fatalf("TokensOfOwner = %v, %v", ids, err)
	}
	if _, err := tr.TokenURI(context.Background(), big.NewInt(1)); err != nil {
		t.Fatalf("TokenURI: %v", err)
	}
}

func TestTokenReader_OwnedTokensAndInvalidate(t *testing.T) {
	r := &stubReader{owned: []*big.Int{big.NewInt(1), big.NewInt(2)}}
	tr := newTestTokenReader(r, newMemCache(), nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ids, err := tr.TokensOfOwner(ctx, owner)
		if err != nil {
			t.Fatalf("TokensOfOwner: %v", err)
		}
		if len(ids) != 2 || ids[0].Int64() != 1 || ids[1].Int64() != 2 {
			t.Fatalf("TokensOfOwner = %v", ids)
		}
	}
	if r.enumCalls != 1 {
		t.Fatalf("chain calls = %d, want 1", r.enumCalls)
	}

	r.owned = append(r.owned, big.NewInt(3))
	if err := tr.InvalidateOwner(ctx, owner, ""); err != nil {
		t.Fatalf("InvalidateOwner: %v", err)
	}

	ids, err := tr.TokensOfOwner(ctx, owner)
	if err != nil {
		t.Fatalf("TokensOfOwner: %v", err)
	}
	if len(ids) != 3 || r.enumCalls != 2 {
		t.Fatalf("after invalidate: ids=%v calls=%d", ids, r.enumCalls)
	}
}

func TestTokenReader_EmptyOwnedSetIsCached(t *testing.T) {
	r := &stubReader{owned: nil}
	tr := newTestTokenReader(r, newMemCache(), nil)

	for i := 0; i < 2; i++ {
		ids, err := tr.TokensOfOwner(context.Background(), owner)
		if err != nil || len(ids) != 0 {
			t.Fatalf("TokensOfOwner = %v, %v", ids, err)
		}
	}
	if r.enumCalls != 1 {
		t.Errorf("chain calls = %d, want 1", r.enumCalls)
	}
}

func TestTokenReader_NoCache(t *testing.T) {
	r := &stubReader{uri: "x"}
	tr := newTestTokenReader(r, nil, nil)

	for i := 0; i < 2; i++ {
		if _, err := tr.TokenURI(context.Background(), big.NewInt(1)); err != nil {
			t.Fatalf("TokenURI: %v", err)
		}
	}
	if r.uriCalls != 2 {
		t.Errorf("chain calls = %d, want 2", r.uriCalls)
	}
	if err := tr.InvalidateOwner(context.Background(), owner); err != nil {
		t.Errorf("InvalidateOwner without cache: %v", err)
	}
}

func TestParseTokenIDs(t *testing.T) {
	t.Parallel()

	if _, ok := parseTokenIDs([]string{"1", "x"}); ok {
		t.Error("expected corrupt entry to be rejected")
	}
	ids, ok := parseTokenIDs([]string{})
	if !ok || ids == nil || len(ids) != 0 {
		t.Errorf("parseTokenIDs(empty) = %v, %v", ids, ok)
	}
}

func TestTokenReader_BypassSkipsOwnedCache(t *testing.T) {
	r := &stubReader{owned: []*big.Int{big.NewInt(1)}}
	c := newMemCache()
	tr := newTestTokenReader(r, c, nil)
	ctx := context.Background()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	// Lowercase input must still match the checksummed owner.
	tr.Bypass(15*time.Second, model.Address("0x70997970c51812dc3a010c7d01b50e0d17dc79c8"))

	for i := 0; i < 2; i++ {
		if _, err := tr.TokensOfOwner(ctx, owner); err != nil {
			t.Fatalf("TokensOfOwner: %v", err)
		}
	}
	if r.enumCalls != 2 {
		t.Errorf("chain calls during bypass = %d, want 2", r.enumCalls)
	}
	if len(c.owned) != 0 {
		t.Fatalf("owned set cached during bypass: %v", c.owned)
	}

	// Inclusion: the new token shows up once the window ends.
	r.owned = append(r.owned, big.NewInt(2))
	now = now.Add(15 * time.Second)

	ids, err := tr.TokensOfOwner(ctx, owner)
	if err != nil {
		t.Fatalf("TokensOfOwner: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("TokensOfOwner after bypass = %v, want 2 ids", ids)
	}
	if got := c.owned[contractAddr+"/"+owner.String()]; len(got) != 2 {
		t.Errorf("cached owned set = %v, want [1 2]", got)
	}
}

func TestTokenReader_BypassWithoutCacheIsNoop(t *testing.T) {
	tr := newTestTokenReader(&stubReader{}, nil, nil)
	tr.Bypass(time.Minute, owner)
	if len(tr.bypassed) != 0 {
		t.Errorf("bypassed = %v, want empty without a cache", tr.bypassed)
	}
}
