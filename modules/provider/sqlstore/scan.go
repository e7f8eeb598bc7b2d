package sqlstore

import (
	"database/sql"
	"strings"

	"github.com/flemzord/dbarchiver/internal/archive"
)

// scanRecords reads every row into a record whose field order follows the
// result columns, then closes rows.
func scanRecords(rows *sql.Rows) ([]archive.Record, error) {
	defer func() { _ = rows.Close() }()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var records []archive.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		r := archive.NewRecord(len(cols))
		for i, c := range cols {
			r.Set(c.Name(), normalize(c.DatabaseTypeName(), values[i]))
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// normalize turns the raw bytes some drivers return for textual and
// numeric columns into strings. Binary columns keep their bytes.
func normalize(typeName string, v any) any {
	b, ok := v.([]byte)
	if !ok || isBinary(typeName) {
		return v
	}
	return string(b)
}

func isBinary(typeName string) bool {
	t := strings.ToUpper(typeName)
	return strings.Contains(t, "BLOB") ||
		strings.Contains(t, "BINARY") ||
		t == "BYTEA" ||
		t == "IMAGE"
}
