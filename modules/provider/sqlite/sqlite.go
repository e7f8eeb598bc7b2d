// Package sqlite registers the "sqlite" provider. It uses modernc.org/sqlite
// (pure Go, no CGO). The connection string is a database file path,
// optionally followed by driver query parameters.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flemzord/dbarchiver/modules/provider/sqlstore"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const defaultBusyTimeout = 5000

func init() {
	sqlstore.Register("sqlite", nil, "SQLite database file (modernc.org/sqlite)", Dialect{})
}

// Dialect is the SQLite flavour of SQL.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

// Open implements sqlstore.Dialect. The parent directory of the database
// file is created when missing, and every connection of the pool waits
// up to 5 s on a locked database.
func (Dialect) Open(dsn string) (*sql.DB, error) {
	if path := filePath(dsn); path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
			}
		}
	}
	db, err := sql.Open("sqlite", withBusyTimeout(dsn))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	return db, nil
}

// QuoteIdent implements sqlstore.Dialect.
func (Dialect) QuoteIdent(name string) string { return sqlstore.QuoteWith(name, `"`, `"`) }

// Placeholder implements sqlstore.Dialect.
func (Dialect) Placeholder(int) string { return "?" }

// Limit implements sqlstore.Dialect.
func (Dialect) Limit(limit, offset string) string {
	if offset == "" {
		return "LIMIT " + limit
	}
	return "LIMIT " + limit + " OFFSET " + offset
}

// Upsert implements sqlstore.Dialect with INSERT OR REPLACE, which relies
// on a PRIMARY KEY or UNIQUE constraint on the key column.
func (d Dialect) Upsert(table string, columns []string, _ int) string {
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table, sqlstore.Columns(d, columns), sqlstore.Placeholders(d, len(columns)))
}

// filePath returns the file a DSN refers to, or "" for in-memory databases.
func filePath(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", dsn, sep, defaultBusyTimeout)
}
