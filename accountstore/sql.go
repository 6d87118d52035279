package accountstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/pressly/goose/v3"
	"github.com/zuzu-app/authcore"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Driver names a supported database backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

var (
	// ErrUnsupportedDriver is returned by [Open] for an unknown driver.
	ErrUnsupportedDriver = errors.New("accountstore: unsupported driver")
	// ErrDatabaseUnavailable wraps backend failures.
	ErrDatabaseUnavailable = errors.New("accountstore: database unavailable")
)

// SQL is a database/sql account store.
type SQL struct {
	db     *sql.DB
	driver Driver
	now    func() time.Time
}

// Open connects to dsn, applies pending migrations and returns the store.
//
// For SQLite the pool is limited to one connection so that ":memory:"
// databases survive between calls.
func Open(ctx context.Context, driver Driver, dsn string) (*SQL, error) {
	var (
		sqlDriver string
		dialect   goose.Dialect
	)
	switch driver {
	case DriverPostgres:
		sqlDriver, dialect = "pgx", goose.DialectPostgres
	case DriverSQLite:
		sqlDriver, dialect = "sqlite", goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}

	if err := migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}

	return &SQL{db: db, driver: driver, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect) error {
	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(dialect, db, migrations)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}
	return nil
}

// WithClock replaces the clock used for created_at and updated_at.
func (s *SQL) WithClock(now func() time.Time) *SQL {
	if now != nil {
		s.now = now
	}
	return s
}

// Close closes the underlying pool.
func (s *SQL) Close() error {
	return s.db.Close()
}

// DB returns the underlying pool.
func (s *SQL) DB() *sql.DB {
	return s.db
}

// Ping reports whether the database is reachable.
func (s *SQL) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return nil
}

const selectAccount = `
	SELECT id, email, password_hash, role, first_name, last_name, disabled,
	       last_sign_in_at, created_at, updated_at
	FROM accounts
`

func (s *SQL) GetByEmail(ctx context.Context, email string) (authcore.Account, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectAccount+`WHERE email = ?`), normalizeEmail(email))
	return scanAccount(row)
}

func (s *SQL) GetByID(ctx context.Context, id string) (authcore.Account, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectAccount+`WHERE id = ?`), id)
	return scanAccount(row)
}

func (s *SQL) Create(ctx context.Context, in authcore.CreateAccountInput) (authcore.Account, error) {
	role := in.Role
	if role == "" {
		role = authcore.DefaultRole
	}
	now := s.now().UTC()
	a := authcore.Account{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(in.Email),
		PasswordHash: in.PasswordHash,
		Role:         role,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query := `
		INSERT INTO accounts (id, email, password_hash, role, first_name, last_name, disabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		a.ID,
		a.Email,
		a.PasswordHash,
		a.Role,
		a.FirstName,
		a.LastName,
		false,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.Account{}, authcore.ErrEmailTaken
		}
		return authcore.Account{}, fmt.Errorf("%w: insert account: %v", ErrDatabaseUnavailable, err)
	}
	return a, nil
}

func (s *SQL) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	return s.exec(ctx, `UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, s.now().UTC(), id)
}

func (s *SQL) RecordSignIn(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, `UPDATE accounts SET last_sign_in_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), s.now().UTC(), id)
}

// SetDisabled enables or disables an account.
func (s *SQL) SetDisabled(ctx context.Context, id string, disabled bool) error {
	return s.exec(ctx, `UPDATE accounts SET disabled = ?, updated_at = ? WHERE id = ?`,
		disabled, s.now().UTC(), id)
}

// WithTx runs fn inside a transaction. fn's error rolls the transaction back.
func (s *SQL) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrDatabaseUnavailable, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrDatabaseUnavailable, err)
	}
	return nil
}

func (s *SQL) exec(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrDatabaseUnavailable, err)
	}
	if rows == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQL) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func scanAccount(row *sql.Row) (authcore.Account, error) {
	var (
		a          authcore.Account
		lastSignIn sql.NullTime
	)
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.Role,
		&a.FirstName,
		&a.LastName,
		&a.Disabled,
		&lastSignIn,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcore.Account{}, authcore.ErrAccountNotFound
		}
		return authcore.Account{}, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	if lastSignIn.Valid {
		at := lastSignIn.Time.UTC()
		a.LastSignInAt = &at
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
