package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"sauat/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "sauat").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "sauat",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// CreateUser inserts the user and its role assignments in one transaction.
// Missing roles are created on the fly (roles.name is unique).
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, err := validateCreate(op, in)
	if err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	userID, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	users := pgIdent(s.schema, "users")

	_, err = tx.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, email, password_hash, password_salt, first_name, last_name,
		     phone_number, status, email_verified, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		userID,
		in.Email,
		in.PasswordHash,
		in.PasswordSalt,
		in.FirstName,
		in.LastName,
		in.PhoneNumber,
		StatusActive,
		in.EmailVerified,
		now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	for pos, name := range in.Roles {
		roleID, err := s.ensureRoleTx(ctx, tx, name, now)
		if err != nil {
			return User{}, err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO `+pgIdent(s.schema, "user_roles")+` (user_id, role_id, position)
			 VALUES ($1, $2, $3)`,
			userID, roleID, pos,
		)
		if err != nil {
			return User{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}

	return User{
		ID:            userID,
		Email:         in.Email,
		PasswordHash:  in.PasswordHash,
		PasswordSalt:  in.PasswordSalt,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		PhoneNumber:   in.PhoneNumber,
		Status:        StatusActive,
		EmailVerified: in.EmailVerified,
		CreatedAt:     now,
		Roles:         in.Roles,
	}, nil
}

// ensureRoleTx returns the id of role name, creating it if needed.
func (s *PostgresStore) ensureRoleTx(ctx context.Context, tx pgx.Tx, name string, now time.Time) (string, error) {
	roles := pgIdent(s.schema, "roles")

	newID, err := ids.NewULID(now)
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+roles+` (id, name, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		newID, name, now,
	)
	if err != nil {
		return "", err
	}

	var id string
	if err := tx.QueryRow(ctx, `SELECT id FROM `+roles+` WHERE name = $1`, name).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// GetUserByEmail loads a user (with roles) by normalized email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"

	email = NormalizeEmail(email)
	if email == "" {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return s.getUser(ctx, op, "u.email = $1", email)
}

// GetUserByID loads a user (with roles) by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if !ids.Valid(id) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return s.getUser(ctx, op, "u.id = $1", id)
}

func (s *PostgresStore) getUser(ctx context.Context, op, where string, arg any) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")
	userRoles := pgIdent(s.schema, "user_roles")
	roles := pgIdent(s.schema, "roles")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.password_hash, u.password_salt, u.first_name, u.last_name,
		        u.phone_number, u.status, u.email_verified, u.last_login_at, u.created_at,
		        COALESCE(array_agg(r.name ORDER BY ur.position, r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
		   FROM `+users+` u
		   LEFT JOIN `+userRoles+` ur ON ur.user_id = u.id
		   LEFT JOIN `+roles+` r ON r.id = ur.role_id
		  WHERE `+where+`
		  GROUP BY u.id`,
		arg,
	).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.PasswordSalt,
		&u.FirstName,
		&u.LastName,
		&u.PhoneNumber,
		&u.Status,
		&u.EmailVerified,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.Roles,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	return u, nil
}

// TouchLastLogin stamps last_login_at.
func (s *PostgresStore) TouchLastLogin(ctx context.Context, id string, now time.Time) error {
	const op = "identity.TouchLastLogin"

	if err := ctx.Err(); err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "users")+`
		    SET last_login_at = $1
		  WHERE id = $2`,
		now, id,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// ---- helpers ----

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_email" || strings.Contains(c, "email"):
		return "email", true
	case c == "uq_roles_name" || strings.Contains(c, "role"):
		return "role", true
	default:
		return "unique", true
	}
}
