package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
// Schema/table identifiers are quoted with pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the schema used when WithSchema is not given.
const DefaultSchema = "warden"

// WithSchema sets the Postgres schema used by the store.
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !ValidSchemaName(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// ValidSchemaName reports whether s is a plain PostgreSQL identifier.
func ValidSchemaName(s string) bool {
	return pgIdentRe.MatchString(s)
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: DefaultSchema}
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

var _ Store = (*PostgresStore)(nil)

const (
	accountColumns = `id, username, email, name, COALESCE(tagline, ''), time_zone,
       is_active, is_staff, is_admin, created_at, last_login_at`
	accountColumnsA = `a.id, a.username, a.email, a.name, COALESCE(a.tagline, ''), a.time_zone,
       a.is_active, a.is_staff, a.is_admin, a.created_at, a.last_login_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var a Account
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.Name, &a.Tagline, &a.TimeZone,
		&a.IsActive, &a.IsStaff, &a.IsAdmin, &a.CreatedAt, &a.LastLoginAt,
	)
	return a, err
}

// CreateAccount implements Store.
func (s *PostgresStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	if err := s.ready(ctx, op); err != nil {
		return Account{}, err
	}
	in, err := normalizeInput(op, in)
	if err != nil {
		return Account{}, err
	}

	return s.insertAccount(ctx, s.pool, op, in)
}

type pgExecQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) insertAccount(ctx context.Context, q pgExecQuerier, op string, in CreateAccountInput) (Account, error) {
	id, err := NewULID(in.Now)
	if err != nil {
		return Account{}, err
	}

	var tagline *string
	if in.Tagline != "" {
		tagline = &in.Tagline
	}

	row := q.QueryRow(ctx,
		`INSERT INTO `+s.table("accounts")+` (
		     id, username, email, name, tagline, time_zone, password_hash, is_active, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 RETURNING `+accountColumns,
		id, in.Username, in.Email, in.Name, tagline, in.TimeZone, in.Credential, in.IsActive, in.Now,
	)
	acc, err := scanAccount(row)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, err
	}
	return acc, nil
}

// CreateFederatedAccount implements Store. The account and link share one transaction.
func (s *PostgresStore) CreateFederatedAccount(ctx context.Context, in CreateAccountInput, provider, subject string) (Account, error) {
	const op = "identity.CreateFederatedAccount"

	if err := s.ready(ctx, op); err != nil {
		return Account{}, err
	}
	key, err := federatedKeyOf(op, provider, subject)
	if err != nil {
		return Account{}, err
	}
	in, err = normalizeInput(op, in)
	if err != nil {
		return Account{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Account{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	acc, err := s.insertAccount(ctx, tx, op, in)
	if err != nil {
		return Account{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.table("federated_identities")+` (provider, subject, account_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		key.provider, key.subject, acc.ID, in.Now,
	)
	if err != nil {
		if _, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: "federated_identity"}
		}
		return Account{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// GetAccountByID implements Store.
func (s *PostgresStore) GetAccountByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.GetAccountByID"
	if !ValidAccountID(id) {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return s.getBy(ctx, op, "id", strings.TrimSpace(id))
}

// GetAccountByUsername implements Store.
func (s *PostgresStore) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	return s.getBy(ctx, "identity.GetAccountByUsername", "username", NormalizeUsername(username))
}

// GetAccountByEmail implements Store.
func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return s.getBy(ctx, "identity.GetAccountByEmail", "email", NormalizeEmail(email))
}

// getBy looks up one account by a fixed column name; column is never caller input.
func (s *PostgresStore) getBy(ctx context.Context, op, column, value string) (Account, error) {
	if err := s.ready(ctx, op); err != nil {
		return Account{}, err
	}
	if value == "" {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM `+s.table("accounts")+` WHERE `+column+` = $1`,
		value,
	)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, err
	}
	return acc, nil
}

// GetCredential implements Store.
func (s *PostgresStore) GetCredential(ctx context.Context, accountID string) (string, error) {
	const op = "identity.GetCredential"

	if err := s.ready(ctx, op); err != nil {
		return "", err
	}

	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT password_hash FROM `+s.table("accounts")+` WHERE id = $1`,
		accountID,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", NotFoundError{Op: op, Resource: "account"}
		}
		return "", err
	}
	return hash, nil
}

// SetPassword implements Store.
func (s *PostgresStore) SetPassword(ctx context.Context, accountID, credential string, now time.Time) error {
	const op = "identity.SetPassword"
	if strings.TrimSpace(credential) == "" {
		return invalid(op, "credential is required")
	}
	return s.updateOne(ctx, op, now,
		`UPDATE `+s.table("accounts")+` SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		accountID, credential,
	)
}

// SetActive implements Store.
func (s *PostgresStore) SetActive(ctx context.Context, accountID string, active bool, now time.Time) error {
	return s.updateOne(ctx, "identity.SetActive", now,
		`UPDATE `+s.table("accounts")+` SET is_active = $2, updated_at = $3 WHERE id = $1`,
		accountID, active,
	)
}

// TouchLastLogin implements Store.
func (s *PostgresStore) TouchLastLogin(ctx context.Context, accountID string, now time.Time) error {
	return s.updateOne(ctx, "identity.TouchLastLogin", now,
		`UPDATE `+s.table("accounts")+` SET last_login_at = $2, updated_at = $3 WHERE id = $1`,
		accountID, now,
	)
}

// UpdateProfile implements Store. The row is locked while the update is merged.
func (s *PostgresStore) UpdateProfile(ctx context.Context, accountID string, upd ProfileUpdate) (Account, error) {
	const op = "identity.UpdateProfile"

	if err := s.ready(ctx, op); err != nil {
		return Account{}, err
	}
	if !ValidAccountID(accountID) {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	if upd.Now.IsZero() {
		upd.Now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Account{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanAccount(tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM `+s.table("accounts")+` WHERE id = $1 FOR UPDATE`,
		strings.TrimSpace(accountID),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, err
	}

	next, err := applyProfileUpdate(op, cur, upd)
	if err != nil {
		return Account{}, err
	}

	var tagline *string
	if next.Tagline != "" {
		tagline = &next.Tagline
	}
	acc, err := scanAccount(tx.QueryRow(ctx,
		`UPDATE `+s.table("accounts")+`
		    SET username = $2, name = $3, tagline = $4, time_zone = $5, updated_at = $6
		  WHERE id = $1
		 RETURNING `+accountColumns,
		cur.ID, next.Username, next.Name, tagline, next.TimeZone, upd.Now,
	))
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// ListAccounts implements Store.
func (s *PostgresStore) ListAccounts(ctx context.Context, in ListAccountsInput) ([]Account, error) {
	const op = "identity.ListAccounts"

	if err := s.ready(ctx, op); err != nil {
		return nil, err
	}
	in = normalizeList(in)

	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM `+s.table("accounts")+`
		  WHERE id > $1
		  ORDER BY id
		  LIMIT $2`,
		in.After, in.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Account, 0, in.Limit)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

// updateOne runs sql with ($1=accountID, $2=arg, $3=now) and maps zero rows to NotFound.
func (s *PostgresStore) updateOne(ctx context.Context, op string, now time.Time, sql, accountID string, arg any) error {
	if err := s.ready(ctx, op); err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if t, ok := arg.(time.Time); ok && t.IsZero() {
		arg = now
	}

	ct, err := s.pool.Exec(ctx, sql, accountID, arg, now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// LinkFederatedIdentity implements Store.
func (s *PostgresStore) LinkFederatedIdentity(ctx context.Context, provider, subject, accountID string, now time.Time) error {
	const op = "identity.LinkFederatedIdentity"

	if err := s.ready(ctx, op); err != nil {
		return err
	}
	key, err := federatedKeyOf(op, provider, subject)
	if err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// The conditional DO UPDATE touches only rows owned by accountID, so a row
	// linked elsewhere yields no RETURNING row.
	var owner string
	err = s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table("federated_identities")+` AS f (provider, subject, account_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (provider, subject) DO UPDATE
		    SET last_login_at = EXCLUDED.created_at
		  WHERE f.account_id = EXCLUDED.account_id
		 RETURNING account_id`,
		key.provider, key.subject, accountID, now,
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ConflictError{Op: op, Field: "federated_identity"}
		}
		if pgIsForeignKeyViolation(err) {
			return NotFoundError{Op: op, Resource: "account"}
		}
		return err
	}
	return nil
}

// GetAccountByFederatedIdentity implements Store.
func (s *PostgresStore) GetAccountByFederatedIdentity(ctx context.Context, provider, subject string) (Account, error) {
	const op = "identity.GetAccountByFederatedIdentity"

	if err := s.ready(ctx, op); err != nil {
		return Account{}, err
	}
	key, err := federatedKeyOf(op, provider, subject)
	if err != nil {
		return Account{}, err
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumnsA+`
		   FROM `+s.table("federated_identities")+` f
		   JOIN `+s.table("accounts")+` a ON a.id = f.account_id
		  WHERE f.provider = $1 AND f.subject = $2`,
		key.provider, key.subject,
	)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "federated_identity"}
		}
		return Account{}, err
	}
	return acc, nil
}

// ---- helpers ----

func (s *PostgresStore) ready(ctx context.Context, op string) error {
	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	return ctx.Err()
}

func (s *PostgresStore) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch c {
	case "uq_accounts_username":
		return "username", true
	case "uq_accounts_email":
		return "email", true
	case "pk_federated_identities":
		return "federated_identity", true
	}
	switch {
	case strings.Contains(c, "username"):
		return "username", true
	case strings.Contains(c, "email"):
		return "email", true
	case strings.Contains(c, "federated"):
		return "federated_identity", true
	default:
		return "unique", true
	}
}
