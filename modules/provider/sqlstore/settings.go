package sqlstore

import (
	"errors"
	"fmt"
	"strings"
)

// Pagination modes.
const (
	// PaginateOffset pages with LIMIT/OFFSET ordered by the id column.
	PaginateOffset = "offset"
	// PaginateKeyset pages with "id > last seen id", which stays correct
	// when archived rows are deleted between pages.
	PaginateKeyset = "keyset"
)

const defaultIDColumn = "id"

// Settings is the source and target configuration shared by the SQL
// providers.
type Settings struct {
	// ConnectionString is passed verbatim to the database driver.
	ConnectionString string `yaml:"connection_string"`

	// Schema optionally qualifies Table.
	Schema string `yaml:"schema"`

	Table string `yaml:"table"`

	// IDColumn identifies and orders rows. Defaults to "id".
	IDColumn string `yaml:"id_column"`

	// Condition is an optional SQL boolean expression restricting the rows
	// a source selects. Ignored by targets.
	Condition string `yaml:"condition"`

	// Pagination is "offset" (default) or "keyset".
	Pagination string `yaml:"pagination"`
}

// SetDefaults fills in unset optional fields.
func (s *Settings) SetDefaults() {
	if s.IDColumn == "" {
		s.IDColumn = defaultIDColumn
	}
	if s.Pagination == "" {
		s.Pagination = PaginateOffset
	}
	s.Pagination = strings.ToLower(s.Pagination)
}

// Validate checks required fields.
func (s *Settings) Validate() error {
	var errs []error
	if s.ConnectionString == "" {
		errs = append(errs, errors.New("connection_string is required"))
	}
	if s.Table == "" {
		errs = append(errs, errors.New("table is required"))
	}
	if s.Pagination != PaginateOffset && s.Pagination != PaginateKeyset {
		errs = append(errs, fmt.Errorf("pagination %q is not one of offset, keyset", s.Pagination))
	}
	return errors.Join(errs...)
}

// KeyField implements archive.SourceSettings and archive.TargetSettings.
func (s *Settings) KeyField() string {
	return s.IDColumn
}

// Secrets returns the connection string so it never reaches the logs.
func (s *Settings) Secrets() []string {
	return []string{s.ConnectionString}
}
