// Package mssql registers the "mssql" provider (alias "sqlserver") backed
// by github.com/microsoft/go-mssqldb. The connection string may be a
// sqlserver:// URL or an ADO-style key/value string.
package mssql

import (
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver registration

	"github.com/flemzord/dbarchiver/modules/provider/sqlstore"
)

const maxOpenConns = 4

func init() {
	sqlstore.Register("mssql", []string{"sqlserver"}, "Microsoft SQL Server (go-mssqldb)", Dialect{})
}

// Dialect is the T-SQL flavour of SQL.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

// Open implements sqlstore.Dialect.
func (Dialect) Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpenConns)
	return db, nil
}

// QuoteIdent implements sqlstore.Dialect.
func (Dialect) QuoteIdent(name string) string { return sqlstore.QuoteWith(name, "[", "]") }

// Placeholder implements sqlstore.Dialect.
func (Dialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

// Limit implements sqlstore.Dialect. OFFSET/FETCH requires ORDER BY,
// which every page query has.
func (Dialect) Limit(limit, offset string) string {
	if offset == "" {
		offset = "0"
	}
	return "OFFSET " + offset + " ROWS FETCH NEXT " + limit + " ROWS ONLY"
}

// Upsert implements sqlstore.Dialect. The key parameter is reused in the
// existence check.
func (d Dialect) Upsert(table string, columns []string, key int) string {
	return fmt.Sprintf("IF NOT EXISTS (SELECT 1 FROM %s WHERE %s = %s) INSERT INTO %s (%s) VALUES (%s)",
		table, d.QuoteIdent(columns[key]), d.Placeholder(key+1),
		table, sqlstore.Columns(d, columns), sqlstore.Placeholders(d, len(columns)))
}
