package s3

import (
	"errors"
	"fmt"
)

const (
	defaultKeyField    = "id"
	defaultConcurrency = 8
)

// Settings configures an S3 target.
type Settings struct {
	Bucket string `yaml:"bucket"`

	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`

	// Region overrides the region from the AWS environment.
	Region string `yaml:"region"`

	// Endpoint targets an S3-compatible service such as MinIO.
	Endpoint string `yaml:"endpoint"`

	// UsePathStyle addresses the bucket in the path rather than the host.
	UsePathStyle bool `yaml:"use_path_style"`

	// AccessKeyID and SecretAccessKey are static credentials. When empty
	// the default AWS credential chain is used.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// Field names the record field that becomes the object name.
	// Defaults to "id".
	Field string `yaml:"key_field"`

	// Concurrency bounds the parallel uploads of one batch. Defaults to 8.
	Concurrency int `yaml:"concurrency"`
}

// SetDefaults fills in unset optional fields.
func (s *Settings) SetDefaults() {
	if s.Field == "" {
		s.Field = defaultKeyField
	}
	if s.Concurrency == 0 {
		s.Concurrency = defaultConcurrency
	}
}

// Validate checks required fields.
func (s *Settings) Validate() error {
	var errs []error
	if s.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if (s.AccessKeyID == "") != (s.SecretAccessKey == "") {
		errs = append(errs, errors.New("access_key_id and secret_access_key must be set together"))
	}
	if s.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", s.Concurrency))
	}
	return errors.Join(errs...)
}

// KeyField implements archive.TargetSettings.
func (s *Settings) KeyField() string {
	return s.Field
}

// Secrets returns the static secret key, if any.
func (s *Settings) Secrets() []string {
	return []string{s.SecretAccessKey}
}
