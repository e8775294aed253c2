// Package testutil holds helpers shared by the integration-tagged tests.
package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mintdesk/mintdesk/internal/model"
)

// RequireEnv returns the variable or skips the test when it is unset.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("%s not set", key)
	}
	return v
}

// schemaLockKey is the pg_advisory_lock key that serializes tests sharing
// one database across packages.
const schemaLockKey int64 = 0x6d696e74

// Postgres connects to DATABASE_URL, takes the schema lock for the rest of
// the test and rebuilds the mint ledger from the migration files.
func Postgres(t testing.TB) (context.Context, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	dsn := RequireEnv(t, "DATABASE_URL")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	// The lock is session scoped, so hold one connection until cleanup.
	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", schemaLockKey); err != nil {
		conn.Release()
		t.Fatalf("take schema lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", schemaLockKey)
		conn.Release()
	})

	for _, up := range []bool{false, true} {
		if _, err := pool.Exec(ctx, Migration(t, "000001_mint_attempts", up)); err != nil {
			t.Fatalf("apply %s migration: %v", direction(up), err)
		}
	}
	return ctx, pool
}

// Migration returns the SQL of migrations/<name>.{up,down}.sql.
func Migration(t testing.TB, name string, up bool) string {
	t.Helper()
	root, err := ProjectRoot()
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(root, "migrations", name+"."+direction(up)+".sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	return string(b)
}

func direction(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

// FlushRedis empties the selected Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot resolves the module root from this file's location.
func ProjectRoot() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("testutil: cannot resolve source location")
	}
	return filepath.Join(filepath.Dir(file), "..", ".."), nil
}

// NewTestMintAttempt returns a pending attempt for recipient, created now.
func NewTestMintAttempt(t testing.TB, recipient string) *model.MintAttempt {
	t.Helper()
	return &model.MintAttempt{
		ID:        ulid.Make().String(),
		Contract:  "NFTContract",
		Recipient: recipient,
		Status:    model.MintStatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// UniqueID returns prefix with a fresh ulid suffix, for keys that must not
// collide between runs against a shared server.
func UniqueID(prefix string) string {
	return prefix + "-" + strings.ToLower(ulid.Make().String())
}
