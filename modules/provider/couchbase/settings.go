package couchbase

import (
	"errors"
	"fmt"
	"strings"
)

// Pagination modes.
const (
	PaginateOffset = "offset"
	PaginateKeyset = "keyset"
)

const (
	defaultKeyField = "id"
	defaultScope    = "_default"
)

// Settings configures a Couchbase source or target.
type Settings struct {
	ConnectionString string `yaml:"connection_string"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`

	Bucket     string `yaml:"bucket"`
	Scope      string `yaml:"scope"`
	Collection string `yaml:"collection"`

	// KeyProperty names the document property that holds the document
	// key. Defaults to "id".
	KeyProperty string `yaml:"key_property"`

	// Condition is an optional N1QL predicate over the alias "t".
	Condition string `yaml:"condition"`

	// Pagination is "offset" (default) or "keyset".
	Pagination string `yaml:"pagination"`
}

// SetDefaults fills in unset optional fields.
func (s *Settings) SetDefaults() {
	if s.KeyProperty == "" {
		s.KeyProperty = defaultKeyField
	}
	if s.Scope == "" {
		s.Scope = defaultScope
	}
	if s.Collection == "" {
		s.Collection = defaultScope
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
	if s.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}
	if s.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if s.Pagination != PaginateOffset && s.Pagination != PaginateKeyset {
		errs = append(errs, fmt.Errorf("pagination %q is not one of offset, keyset", s.Pagination))
	}
	return errors.Join(errs...)
}

// KeyField implements archive.SourceSettings and archive.TargetSettings.
func (s *Settings) KeyField() string {
	return s.KeyProperty
}

// Secrets returns the password so it never reaches the logs.
func (s *Settings) Secrets() []string {
	return []string{s.Password}
}

// keyspace returns the fully qualified collection path.
func (s *Settings) keyspace() string {
	return quoteIdent(s.Bucket) + "." + quoteIdent(s.Scope) + "." + quoteIdent(s.Collection)
}

// selectPage renders the N1QL statement for one page and its positional
// parameters. In keyset mode the first page carries no lower bound and
// offset is ignored.
func (s *Settings) selectPage(limit, offset int, after any) (string, []any) {
	key := "t." + quotePath(s.KeyProperty)

	var b strings.Builder
	b.WriteString("SELECT RAW t FROM ")
	b.WriteString(s.keyspace())
	b.WriteString(" AS t WHERE ")
	b.WriteString(key)
	b.WriteString(" IS NOT MISSING")
	if s.Condition != "" {
		b.WriteString(" AND (" + s.Condition + ")")
	}

	var args []any
	keyset := s.Pagination == PaginateKeyset
	if keyset && after != nil {
		args = append(args, after)
		fmt.Fprintf(&b, " AND %s > $%d", key, len(args))
	}
	b.WriteString(" ORDER BY " + key)

	args = append(args, limit)
	fmt.Fprintf(&b, " LIMIT $%d", len(args))
	if !keyset {
		args = append(args, offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// quotePath quotes every segment of a dotted property path.
func quotePath(path string) string {
	parts := strings.Split(path, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}
