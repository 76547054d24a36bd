package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"warden/cmd/identity"
)

// PostgresStore implements Store using PostgreSQL (<schema>.sessions).
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresStore creates a Postgres-backed session store in schema
// (identity.DefaultSchema when empty).
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	if schema == "" {
		schema = identity.DefaultSchema
	}
	if !identity.ValidSchemaName(schema) {
		return nil, fmt.Errorf("session: invalid schema identifier")
	}
	return &PostgresStore{pool: pool, table: pgx.Identifier{schema, "sessions"}.Sanitize()}, nil
}

var _ Store = (*PostgresStore)(nil)

// Create inserts a new session row and returns its ULID.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, accountID, secretHash string, expiresAt time.Time) (string, error) {
	id, err := identity.NewULID(now)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (
			id, account_id, secret_hash,
			created_at, last_used_at, expires_at, revoked_at
		) VALUES (
			$1, $2, $3,
			$4, $4, $5, NULL
		)
	`, id, accountID, secretHash, now, expiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return "", identity.NotFoundError{Op: "session.Create", Resource: "account"}
		}
		return "", err
	}

	return id, nil
}

// GetBySecretHash loads a session row by identifier hash.
func (s *PostgresStore) GetBySecretHash(ctx context.Context, secretHash string) (Row, error) {
	var row Row

	err := s.pool.QueryRow(ctx, `
		SELECT
			id, account_id, secret_hash,
			created_at, last_used_at, expires_at, revoked_at
		FROM `+s.table+`
		WHERE secret_hash = $1
	`, secretHash).Scan(
		&row.ID,
		&row.AccountID,
		&row.SecretHash,
		&row.CreatedAt,
		&row.LastUsedAt,
		&row.ExpiresAt,
		&row.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrNotActive
	}
	if err != nil {
		return Row{}, err
	}

	return row, nil
}

// Touch updates last_used_at for an active session.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, secretHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET last_used_at = $2
		WHERE secret_hash = $1
		  AND revoked_at IS NULL
		  AND expires_at > $2
	`, secretHash, now)
	return err
}

// Revoke revokes a single session (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, secretHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE secret_hash = $1
	`, secretHash, now)
	return err
}

// RevokeAll revokes all sessions for an account except keepHash (idempotent).
func (s *PostgresStore) RevokeAll(ctx context.Context, now time.Time, accountID, keepHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET revoked_at = $2
		WHERE account_id = $1
		  AND revoked_at IS NULL
		  AND secret_hash <> $3
	`, accountID, now, keepHash)
	return err
}
