package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
)

// Dialect captures what differs between SQL backends.
type Dialect interface {
	// Open returns a connection pool for dsn with driver-specific options
	// applied.
	Open(dsn string) (*sql.DB, error)

	// QuoteIdent quotes a single identifier.
	QuoteIdent(name string) string

	// Placeholder returns the bind parameter for the n-th argument, counting
	// from 1.
	Placeholder(n int) string

	// Limit renders the paging clause that follows ORDER BY. offset is empty
	// when the query pages by key instead of by offset.
	Limit(limit, offset string) string

	// Upsert renders an insert of columns into table that leaves an existing
	// row with the same key untouched or replaces it, but never fails on it
	// and never duplicates it. key indexes columns.
	Upsert(table string, columns []string, key int) string
}

// QuoteWith quotes name between open and close, doubling any embedded
// close character.
func QuoteWith(name, open, close string) string {
	return open + strings.ReplaceAll(name, close, close+close) + close
}

// Columns quotes columns with d.
func Columns(d Dialect, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

// Placeholders renders n bind parameters starting at the first.
func Placeholders(d Dialect, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = d.Placeholder(i + 1)
	}
	return strings.Join(ph, ", ")
}

// query builds a statement and numbers its bind parameters in order of
// appearance.
type query struct {
	d    Dialect
	sb   strings.Builder
	args []any
}

func (q *query) write(s string) *query {
	q.sb.WriteString(s)
	return q
}

func (q *query) bind(v any) string {
	q.args = append(q.args, v)
	return q.d.Placeholder(len(q.args))
}

func (q *query) String() string {
	return q.sb.String()
}

func tableName(d Dialect, s *Settings) string {
	if s.Schema == "" {
		return d.QuoteIdent(s.Table)
	}
	return d.QuoteIdent(s.Schema) + "." + d.QuoteIdent(s.Table)
}

// selectPage renders the query for one page of s. In keyset mode the first
// page carries no lower bound.
func selectPage(d Dialect, s *Settings, limit, offset int, after any) (string, []any) {
	q := &query{d: d}
	id := d.QuoteIdent(s.IDColumn)
	q.write("SELECT * FROM ").write(tableName(d, s))

	keyset := s.Pagination == PaginateKeyset
	var where []string
	if s.Condition != "" {
		where = append(where, "("+s.Condition+")")
	}
	if keyset && after != nil {
		where = append(where, fmt.Sprintf("%s > %s", id, q.bind(after)))
	}
	if len(where) > 0 {
		q.write(" WHERE ").write(strings.Join(where, " AND "))
	}

	q.write(" ORDER BY ").write(id).write(" ")
	if keyset {
		q.write(d.Limit(q.bind(limit), ""))
	} else {
		lim := q.bind(limit)
		q.write(d.Limit(lim, q.bind(offset)))
	}
	return q.String(), q.args
}

func deleteByKey(d Dialect, s *Settings) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s", tableName(d, s), d.QuoteIdent(s.IDColumn), d.Placeholder(1))
}
