package bolt

import (
	"errors"
	"fmt"
	"time"
)

const (
	defaultKeyField = "id"
	defaultTimeout  = 3 * time.Second
)

// Settings configures a bbolt source or target.
type Settings struct {
	// Path is the database file.
	Path string `yaml:"path"`

	// Bucket holds the records. Targets create it on first insert.
	Bucket string `yaml:"bucket"`

	// Field is the record field whose value becomes the bucket key.
	// Defaults to "id".
	Field string `yaml:"key_field"`

	// Timeout bounds the wait for the file lock. Defaults to 3s.
	Timeout time.Duration `yaml:"timeout"`
}

// SetDefaults fills in unset optional fields.
func (s *Settings) SetDefaults() {
	if s.Field == "" {
		s.Field = defaultKeyField
	}
	if s.Timeout == 0 {
		s.Timeout = defaultTimeout
	}
}

// Validate checks required fields.
func (s *Settings) Validate() error {
	var errs []error
	if s.Path == "" {
		errs = append(errs, errors.New("path is required"))
	}
	if s.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if s.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must be non-negative, got %s", s.Timeout))
	}
	return errors.Join(errs...)
}

// KeyField implements archive.SourceSettings and archive.TargetSettings.
func (s *Settings) KeyField() string {
	return s.Field
}
