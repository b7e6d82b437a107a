package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func getForUpdateTx(ctx context.Context, tx pgx.Tx, table, token string) (RefreshToken, error) {
	row := tx.QueryRow(ctx, `SELECT `+refreshColumns+` FROM `+table+` WHERE token = $1 FOR UPDATE`, token)
	return scanRefreshToken(row)
}

func insertTx(ctx context.Context, db execer, table string, t RefreshToken) error {
	_, err := db.Exec(ctx, `
		INSERT INTO `+table+` (
			token, user_id, expires_at, created_at, created_by_ip,
			is_revoked, revoked_at, revoked_reason, revoked_by_ip, replaced_by_token
		) VALUES (
			$1, $2, $3, $4, $5,
			false, NULL, NULL, NULL, NULL
		)
	`, t.Token, t.UserID, t.ExpiresAt, t.CreatedAt, t.CreatedByIP)
	return err
}

// markRotatedTx revokes the old row only if it is still unrevoked. The row
// is already locked, so zero affected rows means an invariant was broken.
func markRotatedTx(ctx context.Context, tx pgx.Tx, table, oldToken, replacedBy string, rev Revocation) error {
	ct, err := tx.Exec(ctx, `
		UPDATE `+table+`
		SET is_revoked = true,
		    revoked_at = $2,
		    revoked_by_ip = $3,
		    revoked_reason = $4,
		    replaced_by_token = $5
		WHERE token = $1
		  AND is_revoked = false
	`, oldToken, rev.At, nullIfEmpty(rev.ByIP), rev.Reason, replacedBy)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("session: rotate %w", ErrTokenNotActive)
	}
	return nil
}
