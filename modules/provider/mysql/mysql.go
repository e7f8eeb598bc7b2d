// Package mysql registers the "mysql" provider backed by
// github.com/go-sql-driver/mysql. The connection string uses the driver's
// DSN format (user:pass@tcp(host:3306)/db). Pre-scripts with several
// statements need multiStatements=true in the DSN.
package mysql

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/flemzord/dbarchiver/modules/provider/sqlstore"
)

const maxOpenConns = 4

func init() {
	sqlstore.Register("mysql", []string{"mariadb"}, "MySQL and MariaDB (go-sql-driver/mysql)", Dialect{})
}

// Dialect is the MySQL flavour of SQL.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

// Open implements sqlstore.Dialect. Time columns are parsed into
// time.Time unless the DSN says otherwise.
func (Dialect) Open(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	if !strings.Contains(dsn, "parseTime=") {
		cfg.ParseTime = true
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(maxOpenConns)
	return db, nil
}

// QuoteIdent implements sqlstore.Dialect.
func (Dialect) QuoteIdent(name string) string { return sqlstore.QuoteWith(name, "`", "`") }

// Placeholder implements sqlstore.Dialect.
func (Dialect) Placeholder(int) string { return "?" }

// Limit implements sqlstore.Dialect.
func (Dialect) Limit(limit, offset string) string {
	if offset == "" {
		return "LIMIT " + limit
	}
	return "LIMIT " + limit + " OFFSET " + offset
}

// Upsert implements sqlstore.Dialect with INSERT IGNORE.
func (d Dialect) Upsert(table string, columns []string, _ int) string {
	return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)",
		table, sqlstore.Columns(d, columns), sqlstore.Placeholders(d, len(columns)))
}
