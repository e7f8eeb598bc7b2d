package config

import (
	"errors"
	"fmt"

	"github.com/flemzord/dbarchiver/internal/archive"
	"github.com/flemzord/dbarchiver/internal/provider"
)

// Create validates cfg and builds the ordered job list, binding every
// provider settings section. It fails before any job is scheduled if any
// section cannot be bound; the returned error wraps archive.ErrConfiguration.
func Create(cfg *Config) (*archive.Configuration, error) {
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", archive.ErrConfiguration, err)
	}

	out := &archive.Configuration{Items: make([]archive.Item, 0, len(cfg.Jobs))}
	var errs []error
	for _, job := range cfg.Jobs {
		item, err := createItem(job)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: job %q: %w", job.Schedule.Name, err))
			continue
		}
		out.Items = append(out.Items, item)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func createItem(job JobConfig) (archive.Item, error) {
	src, tgt := job.Transfer.Source, job.Transfer.Target

	srcSettings, err := provider.BindSource(src.Provider, &src.Settings)
	if err != nil {
		return archive.Item{}, err
	}
	tgtSettings, err := provider.BindTarget(tgt.Provider, &tgt.Settings)
	if err != nil {
		return archive.Item{}, err
	}

	ts := archive.TransferSettings{
		Source: archive.SourceConfig{
			Provider:            src.Provider,
			Host:                src.Host,
			BatchSize:           src.BatchSize,
			DeleteAfterArchived: src.DeleteAfterArchived,
			Settings:            srcSettings,
		},
		Target: archive.TargetConfig{
			Provider:  tgt.Provider,
			Host:      tgt.Host,
			PreScript: tgt.PreScript,
			Settings:  tgtSettings,
		},
	}
	if err := ts.Validate(); err != nil {
		return archive.Item{}, err
	}

	return archive.Item{
		Schedule: archive.JobSchedule{Name: job.Schedule.Name, Cron: job.Schedule.Cron},
		Transfer: ts,
	}, nil
}

// Secrets returns every credential found in the bound settings of c.
func Secrets(c *archive.Configuration) []string {
	var out []string
	for _, it := range c.Items {
		out = append(out, provider.Secrets(it.Transfer.Source.Settings)...)
		out = append(out, provider.Secrets(it.Transfer.Target.Settings)...)
	}
	return out
}
