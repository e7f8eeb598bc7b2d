package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flemzord/dbarchiver/internal/cron"
	"github.com/flemzord/dbarchiver/internal/provider"
)

var validLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures jobs are present and uniquely
// named, parses every cron expression, and checks that every provider
// exists with the capability its section needs. Provider settings are
// bound later by Create.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, fmt.Errorf("config: logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level))
	}
	if f := strings.ToLower(cfg.Logging.Format); f != "" && f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("config: logging.format %q is not one of text, json", cfg.Logging.Format))
	}

	if r := cfg.Tracing.SampleRatio; r != nil && (*r < 0 || *r > 1) {
		errs = append(errs, fmt.Errorf("config: tracing.sample_ratio must be within [0, 1], got %v", *r))
	}

	if len(cfg.Jobs) == 0 {
		errs = append(errs, errors.New("config: at least one job must be configured"))
	}

	seen := make(map[string]int, len(cfg.Jobs))
	for i, job := range cfg.Jobs {
		errs = append(errs, validateJob(i, job, seen)...)
	}

	return errors.Join(errs...)
}

func validateJob(i int, job JobConfig, seen map[string]int) []error {
	var errs []error

	label := fmt.Sprintf("jobs[%d]", i)
	name := job.Schedule.Name
	switch {
	case name == "":
		errs = append(errs, fmt.Errorf("config: %s: schedule.name is required", label))
	default:
		label = fmt.Sprintf("job %q", name)
		if prev, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("config: duplicate job name %q (jobs[%d] and jobs[%d])", name, prev, i))
		} else {
			seen[name] = i
		}
	}

	if job.Schedule.Cron == "" {
		errs = append(errs, fmt.Errorf("config: %s: schedule.cron is required", label))
	} else if _, err := cron.Parser.Parse(job.Schedule.Cron); err != nil {
		errs = append(errs, fmt.Errorf("config: %s: invalid cron %q: %w", label, job.Schedule.Cron, err))
	}

	src := job.Transfer.Source
	if src.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("config: %s: source.batch_size must be positive, got %d", label, src.BatchSize))
	}
	if src.Provider == "" {
		errs = append(errs, fmt.Errorf("config: %s: source.provider is required", label))
	} else if _, err := provider.Resolve(src.Provider, provider.CapSource); err != nil {
		errs = append(errs, fmt.Errorf("config: %s: source: %w", label, err))
	}

	tgt := job.Transfer.Target
	if tgt.Provider == "" {
		errs = append(errs, fmt.Errorf("config: %s: target.provider is required", label))
	} else if _, err := provider.Resolve(tgt.Provider, provider.CapTarget); err != nil {
		errs = append(errs, fmt.Errorf("config: %s: target: %w", label, err))
	}

	return errs
}
