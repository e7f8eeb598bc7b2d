// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for dbarchiver.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Logging LoggingConfig `yaml:"logging"`

	// Gateway holds the raw HTTP gateway configuration. The gateway is
	// disabled when the section is absent.
	Gateway *yaml.Node `yaml:"gateway,omitempty"`

	Tracing TracingConfig `yaml:"tracing"`

	Service ServiceConfig `yaml:"service"`

	// Jobs lists the archival jobs in scheduling order.
	Jobs []JobConfig `yaml:"jobs"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default info)
	Format string `yaml:"format"` // text or json (default text)
}

// TracingConfig configures OpenTelemetry export. Tracing is a no-op when
// Endpoint is empty.
type TracingConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	ServiceName string            `yaml:"service_name"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	SampleRatio *float64          `yaml:"sample_ratio,omitempty"`
}

// ServiceConfig describes the OS service registration.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
}

// JobConfig is one scheduled archival job.
type JobConfig struct {
	Schedule ScheduleConfig `yaml:"schedule"`
	Transfer TransferConfig `yaml:"transfer"`
}

// ScheduleConfig names the job and sets its cron expression. Both five-field
// and six-field (leading seconds) expressions are accepted, as are
// descriptors such as @hourly and @every 10m.
type ScheduleConfig struct {
	Name string `yaml:"name"`
	Cron string `yaml:"cron"`
}

// TransferConfig pairs the source and target sections.
type TransferConfig struct {
	Source SourceConfig `yaml:"source"`
	Target TargetConfig `yaml:"target"`
}

// SourceConfig is the source section of a job. Settings is decoded by the
// provider's binder.
type SourceConfig struct {
	Provider            string    `yaml:"provider"`
	Host                string    `yaml:"host"`
	BatchSize           int       `yaml:"batch_size"`
	DeleteAfterArchived bool      `yaml:"delete_after_archived"`
	Settings            yaml.Node `yaml:"settings"`
}

// TargetConfig is the target section of a job.
type TargetConfig struct {
	Provider  string    `yaml:"provider"`
	Host      string    `yaml:"host"`
	PreScript string    `yaml:"pre_script"`
	Settings  yaml.Node `yaml:"settings"`
}

// GatewayModuleID is the module that consumes the gateway section.
const GatewayModuleID = "gateway.http"

// ModuleIDs returns the IDs of the optional modules enabled by c, in start
// order.
func (c *Config) ModuleIDs() []string {
	var ids []string
	if c.Gateway != nil {
		ids = append(ids, GatewayModuleID)
	}
	return ids
}

// ModuleConfigs maps module IDs to their raw configuration sections.
func (c *Config) ModuleConfigs() map[string]yaml.Node {
	m := make(map[string]yaml.Node)
	if c.Gateway != nil {
		m[GatewayModuleID] = *c.Gateway
	}
	return m
}
