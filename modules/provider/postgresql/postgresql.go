// Package postgresql registers the "postgresql" provider (aliases
// "postgres" and "pg") backed by github.com/lib/pq. The connection string
// is either a postgres:// URL or a libpq key/value string.
package postgresql

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver registration

	"github.com/flemzord/dbarchiver/modules/provider/sqlstore"
)

const maxOpenConns = 4

func init() {
	sqlstore.Register("postgresql", []string{"postgres", "pg"}, "PostgreSQL (lib/pq)", Dialect{})
}

// Dialect is the PostgreSQL flavour of SQL.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

// Open implements sqlstore.Dialect.
func (Dialect) Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns - 2)
	return db, nil
}

// QuoteIdent implements sqlstore.Dialect.
func (Dialect) QuoteIdent(name string) string { return sqlstore.QuoteWith(name, `"`, `"`) }

// Placeholder implements sqlstore.Dialect.
func (Dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// Limit implements sqlstore.Dialect.
func (Dialect) Limit(limit, offset string) string {
	if offset == "" {
		return "LIMIT " + limit
	}
	return "LIMIT " + limit + " OFFSET " + offset
}

// Upsert implements sqlstore.Dialect. An existing row with the same key is
// left untouched.
func (d Dialect) Upsert(table string, columns []string, key int) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		table, sqlstore.Columns(d, columns), sqlstore.Placeholders(d, len(columns)), d.QuoteIdent(columns[key]))
}
