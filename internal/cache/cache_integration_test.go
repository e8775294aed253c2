//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mintdesk/mintdesk/internal/testutil"
)

func newTestCache(t *testing.T) (context.Context, *Cache) {
	t.Helper()

	redisURL := testutil.RequireEnv(t, "REDIS_URL")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	c, err := New(ctx, redisURL)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := testutil.FlushRedis(ctx, c.client); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return ctx, c
}

func TestIntegrationTokenURI_RoundTrip(t *testing.T) {
	ctx, c := newTestCache(t)
	contract := testutil.UniqueID("0xcontract")

	if _, err := c.GetTokenURI(ctx, contract, "1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("GetTokenURI on empty cache err = %v, want ErrCacheMiss", err)
	}

	uri := `{"image":"<svg/>"}`
	if err := c.SetTokenURI(ctx, contract, "1", uri, time.Minute); err != nil {
		t.Fatalf("SetTokenURI: %v", err)
	}
	got, err := c.GetTokenURI(ctx, contract, "1")
	if err != nil {
		t.Fatalf("GetTokenURI: %v", err)
	}
	if got != uri {
		t.Errorf("GetTokenURI = %q, want %q", got, uri)
	}
}

func TestIntegrationOwnedTokens_EmptySetIsCached(t *testing.T) {
	ctx, c := newTestCache(t)
	contract := testutil.UniqueID("0xcontract")
	owner := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	if err := c.SetOwnedTokens(ctx, contract, owner, nil, time.Minute); err != nil {
		t.Fatalf("SetOwnedTokens: %v", err)
	}
	ids, err := c.GetOwnedTokens(ctx, contract, owner)
	if err != nil {
		t.Fatalf("GetOwnedTokens: %v", err)
	}
	if ids == nil || len(ids) != 0 {
		t.Fatalf("GetOwnedTokens = %#v, want empty non-nil", ids)
	}
}

func TestIntegrationOwnedTokens_DeleteByOwner(t *testing.T) {
	ctx, c := newTestCache(t)
	contract := testutil.UniqueID("0xcontract")
	owner := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	if err := c.SetOwnedTokens(ctx, contract, owner, []string{"2", "1"}, time.Minute); err != nil {
		t.Fatalf("SetOwnedTokens: %v", err)
	}
	ids, err := c.GetOwnedTokens(ctx, contract, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	if err != nil {
		t.Fatalf("GetOwnedTokens (lowercase owner): %v", err)
	}
	if len(ids) != 2 || ids[0] != "2" || ids[1] != "1" {
		t.Fatalf("GetOwnedTokens = %v, want [2 1]", ids)
	}

	if err := c.DeleteOwnedTokens(ctx, contract, owner); err != nil {
		t.Fatalf("DeleteOwnedTokens: %v", err)
	}
	if _, err := c.GetOwnedTokens(ctx, contract, owner); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("GetOwnedTokens after delete err = %v, want ErrCacheMiss", err)
	}
}

func TestIntegrationCheckMintRateLimit_Burst(t *testing.T) {
	ctx, c := newTestCache(t)
	ip := testutil.UniqueID("198.51.100.7")

	const burst = 3
	for i := 0; i < burst; i++ {
		res, err := c.CheckMintRateLimit(ctx, ip, 0.01, burst)
		if err != nil {
			t.Fatalf("CheckMintRateLimit #%d: %v", i+1, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d rejected inside burst", i+1)
		}
	}

	res, err := c.CheckMintRateLimit(ctx, ip, 0.01, burst)
	if err != nil {
		t.Fatalf("CheckMintRateLimit: %v", err)
	}
	if res.Allowed {
		t.Fatal("request beyond burst was allowed")
	}
	if res.RetryAfter < time.Second {
		t.Errorf("RetryAfter = %v, want at least 1s", res.RetryAfter)
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}
}
