// Package db opens the configured SQL backend (sqlite or postgres) and
// applies embedded migrations, grounded on clk-66-spectrus/internal/db/db.go.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Dialect identifies which SQL backend a *sql.DB is speaking, since the
// repository layer rewrites `?` placeholders to `$1..$n` for postgres.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Open opens (or creates, for sqlite) the configured database and applies
// any pending migrations. databaseType is "sqlite" or "postgres" (spec §6
// database_type).
func Open(databaseType, url string) (*sql.DB, Dialect, error) {
	switch databaseType {
	case "", "sqlite":
		conn, err := openSQLite(url)
		if err != nil {
			return nil, "", err
		}
		if err := migrate(conn, DialectSQLite); err != nil {
			conn.Close()
			return nil, "", fmt.Errorf("migrate: %w", err)
		}
		return conn, DialectSQLite, nil
	case "postgres":
		conn, err := sql.Open("pgx", url)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres: %w", err)
		}
		if err := migrate(conn, DialectPostgres); err != nil {
			conn.Close()
			return nil, "", fmt.Errorf("migrate: %w", err)
		}
		return conn, DialectPostgres, nil
	default:
		return nil, "", fmt.Errorf("db: unknown database_type %q", databaseType)
	}
}

func openSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite performs best with a single writer.
	conn.SetMaxOpenConns(1)
	return conn, nil
}

func migrate(conn *sql.DB, dialect Dialect) error {
	_, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return err
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}

	for i, entry := range entries {
		version := i + 1
		var exists int
		checkQuery := rebind("SELECT COUNT(1) FROM schema_migrations WHERE version = ?", dialect)
		_ = conn.QueryRow(checkQuery, version).Scan(&exists)
		if exists > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := conn.Exec(string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		insertQuery := rebind("INSERT INTO schema_migrations (version) VALUES (?)", dialect)
		if _, err := conn.Exec(insertQuery, version); err != nil {
			return err
		}
	}

	return nil
}

// rebind translates `?`-style placeholders to postgres's `$1..$n` form.
// sqlite (and the embedded migration SQL) use `?` directly.
func rebind(query string, dialect Dialect) string {
	if dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Rebind exposes rebind for the repository package, which issues its own
// queries against the same dialect Open resolved.
func Rebind(query string, dialect Dialect) string {
	return rebind(query, dialect)
}
