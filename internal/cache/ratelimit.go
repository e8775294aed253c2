package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	// ResetAt is when the bucket will be full again.
	ResetAt    time.Time
	RetryAfter time.Duration
}

// gcraScript implements GCRA: the key stores the theoretical arrival time
// (TAT) in milliseconds and expires once the bucket is full again. Time is
// read from the Redis server so API replicas with skewed clocks agree.
//
// Returns {allowed, retry_after_ms, reset_after_ms, remaining}.
var gcraScript = redis.NewScript(`
local interval = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local tolerance = interval * burst
local tat = tonumber(redis.call('GET', KEYS[1])) or now
if tat < now then
	tat = now
end

local next_tat = tat + interval
local allow_at = next_tat - tolerance
if allow_at > now then
	return {0, allow_at - now, tat - now, 0}
end

redis.call('SET', KEYS[1], next_tat, 'PX', next_tat - now)
return {1, 0, next_tat - now, math.floor((now + tolerance - next_tat) / interval)}
`)

// CheckMintRateLimit spends one mint slot for ip. The bucket holds burst
// slots and refills at ratePerSecond. The ip is stored hashed.
func (c *Cache) CheckMintRateLimit(ctx context.Context, ip string, ratePerSecond float64, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 || burst < 1 {
		return nil, fmt.Errorf("invalid mint rate limit %v/s burst %d", ratePerSecond, burst)
	}
	interval := int64(float64(time.Second/time.Millisecond) / ratePerSecond)
	if interval < 1 {
		interval = 1
	}

	res, err := gcraScript.Run(ctx, c.client, []string{mintRateLimitKey(ip)}, interval, burst).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("mint rate limit script: %w", err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("mint rate limit script: unexpected reply %v", res)
	}

	now := time.Now()
	return &RateLimitResult{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		ResetAt:    now.Add(time.Duration(res[2]) * time.Millisecond),
		Remaining:  res[3],
	}, nil
}

func mintRateLimitKey(ip string) string {
	return key("ratelimit", "mint", hashIP(ip))
}

// hashIP returns the first 8 bytes of sha256(ip), hex encoded.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
