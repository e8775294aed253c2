package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// GetTokenURI returns a cached tokenURI. Returns ErrCacheMiss if not found.
func (c *Cache) GetTokenURI(ctx context.Context, contract, tokenID string) (string, error) {
	uri, err := c.client.Get(ctx, tokenURIKey(contract, tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("redis get token uri: %w", err)
	}
	return uri, nil
}

// SetTokenURI caches a tokenURI.
func (c *Cache) SetTokenURI(ctx context.Context, contract, tokenID, uri string, ttl time.Duration) error {
	if err := c.client.Set(ctx, tokenURIKey(contract, tokenID), uri, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache token uri: %w", err)
	}
	return nil
}

// GetOwnedTokens returns the cached owned set of owner in enumeration order.
// An empty non-nil slice is a cached "owns nothing"; ErrCacheMiss means no entry.
func (c *Cache) GetOwnedTokens(ctx context.Context, contract, owner string) ([]string, error) {
	data, err := c.client.Get(ctx, ownedTokensKey(contract, owner)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get owned tokens: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil || ids == nil {
		// Corrupted entry, treat as miss
		return nil, ErrCacheMiss
	}
	return ids, nil
}

// SetOwnedTokens caches the owned set of owner.
func (c *Cache) SetOwnedTokens(ctx context.Context, contract, owner string, ids []string, ttl time.Duration) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal owned tokens: %w", err)
	}
	if err := c.client.Set(ctx, ownedTokensKey(contract, owner), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache owned tokens: %w", err)
	}
	return nil
}

// DeleteOwnedTokens drops the owned sets of the given owners.
func (c *Cache) DeleteOwnedTokens(ctx context.Context, contract string, owners ...string) error {
	if len(owners) == 0 {
		return nil
	}
	keys := make([]string, 0, len(owners))
	for _, owner := range owners {
		keys = append(keys, ownedTokensKey(contract, owner))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete owned tokens: %w", err)
	}
	return nil
}

func tokenURIKey(contract, tokenID string) string {
	return key("uri", strings.ToLower(contract), tokenID)
}

// Owners are lowercased so checksum and plain forms share an entry.
func ownedTokensKey(contract, owner string) string {
	return key("owned", strings.ToLower(contract), strings.ToLower(owner))
}
