// Package pgtest holds opt-in PostgreSQL helpers for integration tests.
//
// Tests call Open, which skips unless SAUAT_DATABASE_URL is set, then
// NewSchema to get an isolated schema with the embedded migrations applied.
package pgtest

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"sauat/cmd/identity/ids"
	"sauat/cmd/internal/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnvDatabaseURL names the variable that enables integration tests.
const EnvDatabaseURL = "SAUAT_DATABASE_URL"

// Open connects to SAUAT_DATABASE_URL or skips the test.
// Outside CI an unreachable server also skips.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv(EnvDatabaseURL))
	if raw == "" {
		t.Skipf("integration test skipped: %s is not set", EnvDatabaseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", EnvDatabaseURL, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkip(err) {
			t.Skipf("integration test skipped: Postgres unreachable: %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	t.Cleanup(pool.Close)
	return pool
}

// NewSchema creates a throwaway schema, applies the migration DDL inside it
// and drops it on cleanup.
func NewSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	schema := "sauat_it_" + strings.ToLower(id)
	quoted := pgx.Identifier{schema}.Sanitize()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+quoted); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+quoted+` CASCADE`)
	})

	ddl, err := upDDL()
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	ddl = strings.ReplaceAll(ddl, "CREATE SCHEMA IF NOT EXISTS sauat;", "")
	ddl = strings.ReplaceAll(ddl, "sauat.", quoted+".")

	if _, err := pool.Exec(ctx, ddl); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return schema
}

// upDDL concatenates the Up sections of every embedded migration.
func upDDL() (string, error) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, name := range names {
		raw, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return "", err
		}
		s := string(raw)
		if i := strings.Index(s, "-- +goose Down"); i >= 0 {
			s = s[:i]
		}
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func shouldSkip(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host")
}
