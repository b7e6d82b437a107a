package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over the refresh_tokens table.
// The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding refresh_tokens (default "sauat").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed refresh token store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, schema: "sauat"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return s, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "refresh_tokens"}.Sanitize()
}

const refreshColumns = `token, user_id, expires_at, created_at, created_by_ip,
	is_revoked, revoked_at, revoked_reason, revoked_by_ip, replaced_by_token`

// Create inserts a new refresh token row.
func (s *PostgresStore) Create(ctx context.Context, t RefreshToken) error {
	return insertTx(ctx, s.pool, s.table(), t)
}

// Get loads a refresh token by value.
func (s *PostgresStore) Get(ctx context.Context, token string) (RefreshToken, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+refreshColumns+` FROM `+s.table()+` WHERE token = $1`, token)
	return scanRefreshToken(row)
}

// Revoke marks the token revoked when it is still active at rev.At.
func (s *PostgresStore) Revoke(ctx context.Context, token string, rev Revocation) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE `+s.table()+`
		SET is_revoked = true,
		    revoked_at = $2,
		    revoked_by_ip = $3,
		    revoked_reason = $4
		WHERE token = $1
		  AND is_revoked = false
		  AND expires_at >= $2
	`, token, rev.At, nullIfEmpty(rev.ByIP), rev.Reason)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// Rotate locks the old row, checks it is active, inserts the successor and
// revokes the old row in one transaction.
func (s *PostgresStore) Rotate(ctx context.Context, oldToken string, next RefreshToken, rev Revocation) (RefreshToken, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return RefreshToken{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old, err := getForUpdateTx(ctx, tx, s.table(), oldToken)
	if err != nil {
		return RefreshToken{}, err
	}
	if !old.IsActive(rev.At) {
		return RefreshToken{}, ErrTokenNotActive
	}

	next.UserID = old.UserID
	if err := insertTx(ctx, tx, s.table(), next); err != nil {
		return RefreshToken{}, err
	}
	if err := markRotatedTx(ctx, tx, s.table(), oldToken, next.Token, rev); err != nil {
		return RefreshToken{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return RefreshToken{}, err
	}
	return next, nil
}

// DeleteInactive removes revoked and expired rows.
func (s *PostgresStore) DeleteInactive(ctx context.Context, now time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.table()+`
		WHERE is_revoked = true OR expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func scanRefreshToken(row pgx.Row) (RefreshToken, error) {
	var (
		t                        RefreshToken
		reason, byIP, replacedBy *string
	)
	err := row.Scan(
		&t.Token,
		&t.UserID,
		&t.ExpiresAt,
		&t.CreatedAt,
		&t.CreatedByIP,
		&t.IsRevoked,
		&t.RevokedAt,
		&reason,
		&byIP,
		&replacedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshToken{}, ErrTokenNotFound
	}
	if err != nil {
		return RefreshToken{}, err
	}
	t.RevokedReason = deref(reason)
	t.RevokedByIP = deref(byIP)
	t.ReplacedByToken = deref(replacedBy)
	return t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
