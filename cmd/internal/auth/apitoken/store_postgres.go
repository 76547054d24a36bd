package apitoken

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"warden/cmd/identity"
)

// PostgresStore implements Store over <schema>.api_tokens.
// Uniqueness of account_id is enforced by uq_api_tokens_account_id.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresStore creates a Postgres-backed token store in schema
// (identity.DefaultSchema when empty).
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("apitoken: nil pool")
	}
	if schema == "" {
		schema = identity.DefaultSchema
	}
	if !identity.ValidSchemaName(schema) {
		return nil, fmt.Errorf("apitoken: invalid schema identifier")
	}
	return &PostgresStore{pool: pool, table: pgx.Identifier{schema, "api_tokens"}.Sanitize()}, nil
}

var _ Store = (*PostgresStore)(nil)

// GetByAccount implements Store.
func (s *PostgresStore) GetByAccount(ctx context.Context, accountID string) (Token, error) {
	return s.getOne(ctx, `SELECT key, account_id, created_at FROM `+s.table+` WHERE account_id = $1`, accountID)
}

// GetByKey implements Store.
func (s *PostgresStore) GetByKey(ctx context.Context, key string) (Token, error) {
	return s.getOne(ctx, `SELECT key, account_id, created_at FROM `+s.table+` WHERE key = $1`, key)
}

func (s *PostgresStore) getOne(ctx context.Context, sql, arg string) (Token, error) {
	var t Token
	err := s.pool.QueryRow(ctx, sql, arg).Scan(&t.Key, &t.AccountID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, ErrNotFound
	}
	if err != nil {
		return Token{}, err
	}
	return t, nil
}

// InsertIfAbsent implements Store with ON CONFLICT (account_id) DO NOTHING.
func (s *PostgresStore) InsertIfAbsent(ctx context.Context, t Token) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (key, account_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO NOTHING
	`, t.Key, t.AccountID, t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, identity.NotFoundError{Op: "apitoken.InsertIfAbsent", Resource: "account"}
		}
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, accountID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE account_id = $1`, accountID)
	return err
}
