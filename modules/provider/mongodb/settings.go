package mongodb

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/flemzord/dbarchiver/internal/security"
)

// Pagination modes.
const (
	PaginateOffset = "offset"
	PaginateKeyset = "keyset"
)

const defaultIDField = "_id"

// Settings configures a MongoDB source or target.
type Settings struct {
	ConnectionString string `yaml:"connection_string"`
	Database         string `yaml:"database"`
	Collection       string `yaml:"collection"`

	// IDColumn identifies and orders documents. Defaults to "_id".
	IDColumn string `yaml:"id_column"`

	// Filter is an optional Extended JSON query document restricting the
	// documents a source selects.
	Filter string `yaml:"filter"`

	// Pagination is "offset" (skip/limit, default) or "keyset".
	Pagination string `yaml:"pagination"`

	filter bson.D
}

// SetDefaults fills in unset optional fields.
func (s *Settings) SetDefaults() {
	if s.IDColumn == "" {
		s.IDColumn = defaultIDField
	}
	if s.Pagination == "" {
		s.Pagination = PaginateOffset
	}
	s.Pagination = strings.ToLower(s.Pagination)
}

// Validate checks required fields and parses the filter.
func (s *Settings) Validate() error {
	var errs []error
	if s.ConnectionString == "" {
		errs = append(errs, errors.New("connection_string is required"))
	}
	if s.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if s.Collection == "" {
		errs = append(errs, errors.New("collection is required"))
	}
	if s.Pagination != PaginateOffset && s.Pagination != PaginateKeyset {
		errs = append(errs, fmt.Errorf("pagination %q is not one of offset, keyset", s.Pagination))
	}
	if s.Filter != "" {
		f, err := parseDocument(s.Filter)
		if err != nil {
			errs = append(errs, fmt.Errorf("filter: %w", err))
		}
		s.filter = f
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

// query returns the find filter for a page. after bounds the key in keyset
// mode and is ignored otherwise.
func (s *Settings) query(after any) bson.D {
	base := s.filter
	if base == nil {
		base = bson.D{}
	}
	if s.Pagination != PaginateKeyset || after == nil {
		return base
	}
	bound := bson.D{{Key: s.IDColumn, Value: bson.D{{Key: "$gt", Value: after}}}}
	if len(base) == 0 {
		return bound
	}
	return bson.D{{Key: "$and", Value: bson.A{base, bound}}}
}

// parseDocument validates and parses a single Extended JSON document.
func parseDocument(raw string) (bson.D, error) {
	data := []byte(strings.TrimSpace(raw))
	if err := security.ValidateDocument(data); err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
