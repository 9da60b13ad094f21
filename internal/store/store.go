package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/modplan/internal/querysql"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

// Schema version tracking (SQLite user_version):
// 0 - Initial schema (pre-migration)
// 1 - Added index on change_log.resource
const currentSchemaVersion = 1

// DefaultStatementCacheSize bounds the prepared statement cache when no
// option overrides it.
const DefaultStatementCacheSize = 256

// Store executes compiled datasets against a database and records their
// effects in the change log.
type Store struct {
	db      *sql.DB
	dialect querysql.Dialect
	stmts   *lru.Cache[string, *sql.Stmt]
}

type options struct {
	cacheSize int
}

// Option configures a Store.
type Option func(*options)

// WithStatementCacheSize sets how many prepared statements are kept open.
// Evicted statements are closed.
func WithStatementCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	return OpenDSN(string(querysql.DialectSQLite), path, opts...)
}

// OpenDSN opens a store for a database/sql driver name ("sqlite3" or
// "postgres") and data source name, then applies the schema.
func OpenDSN(driver, dsn string, opts ...Option) (*Store, error) {
	dialect, err := querysql.ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	o := options{cacheSize: DefaultStatementCacheSize}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == querysql.DialectSQLite {
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	if err := applySchema(db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	stmts, err := lru.NewWithEvict[string, *sql.Stmt](o.cacheSize, func(_ string, stmt *sql.Stmt) {
		stmt.Close()
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create statement cache: %w", err)
	}

	return &Store{db: db, dialect: dialect, stmts: stmts}, nil
}

// Close releases cached statements and closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.stmts.Purge()
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the backing database.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// Query executes a read-only query outside any transaction. "?"
// placeholders are rewritten for the store's dialect.
// Callers are responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

// EnsureTables executes idempotent DDL statements in order.
func (s *Store) EnsureTables(ctx context.Context, ddl []string) error {
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure tables: %w", err)
		}
	}
	return nil
}

// Prepare warms the statement cache with the given SQL texts.
// Already cached statements are left untouched. When a concurrent caller
// caches the same query first, the statement prepared here is closed.
func (s *Store) Prepare(ctx context.Context, queries ...string) error {
	for _, q := range queries {
		if s.stmts.Contains(q) {
			continue
		}
		stmt, err := s.db.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("prepare %q: %w", q, err)
		}
		if found, _ := s.stmts.ContainsOrAdd(q, stmt); found {
			_ = stmt.Close()
		}
	}
	return nil
}

// CachedStatements returns the number of prepared statements held open.
func (s *Store) CachedStatements() int {
	return s.stmts.Len()
}

// rebind rewrites "?" placeholders for the store's dialect. Only the store's
// own queries go through it; compiled datasets already carry dialect
// placeholders.
func (s *Store) rebind(query string) string {
	if s.dialect != querysql.DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates bookkeeping tables if they don't exist and runs
// migrations. This function is idempotent.
func applySchema(db *sql.DB, dialect querysql.Dialect) error {
	if dialect == querysql.DialectPostgres {
		// lib/pq runs multi-statement text only without parameters
		if _, err := db.Exec(schemaPostgres); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
		return migrateToV1(db)
	}

	if _, err := db.Exec(schemaSQLite); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes change_log by resource for trace lookups.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_change_log_resource ON change_log(resource)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
