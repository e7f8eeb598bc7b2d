// Package archive moves records from a source store to a target store in
// batches. It defines the contracts storage adapters implement and the
// engine that drives a single archival run.
package archive

import (
	"context"
	"errors"
	"fmt"
)

// SourceSettings is the provider-specific configuration of a source.
type SourceSettings interface {
	// KeyField names the field that identifies and orders records.
	KeyField() string
}

// TargetSettings is the provider-specific configuration of a target.
type TargetSettings interface {
	// KeyField names the field used to make inserts idempotent.
	KeyField() string
}

// Source reads and deletes records.
type Source interface {
	// Cursor opens a cursor over the records selected by settings, paging
	// batchSize records at a time in ascending key order.
	Cursor(ctx context.Context, settings SourceSettings, batchSize int) (Cursor, error)
	// Delete removes records by key. An empty slice is a no-op. If any
	// record lacks the key field nothing is deleted.
	Delete(ctx context.Context, settings SourceSettings, records []Record) error
}

// Target writes records.
type Target interface {
	// RunScript executes a preparatory script against the target.
	RunScript(ctx context.Context, settings TargetSettings, script string) error
	// Insert upserts records keyed by the target's key field. Inserting a
	// record whose key already exists neither fails nor duplicates it.
	Insert(ctx context.Context, settings TargetSettings, records []Record) error
}

// SourceConfig is the source half of a transfer.
type SourceConfig struct {
	Provider            string
	Host                string
	BatchSize           int
	DeleteAfterArchived bool
	Settings            SourceSettings
}

// TargetConfig is the target half of a transfer.
type TargetConfig struct {
	Provider  string
	Host      string
	PreScript string
	Settings  TargetSettings
}

// TransferSettings is everything one archival run needs.
type TransferSettings struct {
	Source SourceConfig
	Target TargetConfig
}

// HasPreScript reports whether a pre-script should run before the transfer.
func (t TransferSettings) HasPreScript() bool {
	return t.Target.PreScript != ""
}

// Validate checks the invariants the engine relies on.
func (t TransferSettings) Validate() error {
	var errs []error
	if t.Source.Provider == "" {
		errs = append(errs, errors.New("source provider is required"))
	}
	if t.Target.Provider == "" {
		errs = append(errs, errors.New("target provider is required"))
	}
	if t.Source.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", t.Source.BatchSize))
	}
	if t.Source.Settings == nil {
		errs = append(errs, errors.New("source settings are required"))
	}
	if t.Target.Settings == nil {
		errs = append(errs, errors.New("target settings are required"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
}

// JobSchedule names a job and its cron expression.
type JobSchedule struct {
	Name string
	Cron string
}

// Item pairs a schedule with its transfer.
type Item struct {
	Schedule JobSchedule
	Transfer TransferSettings
}

// Configuration is the ordered list of jobs built from the config file.
type Configuration struct {
	Items []Item
}

// Lookup returns the item named name.
func (c *Configuration) Lookup(name string) (Item, bool) {
	for _, it := range c.Items {
		if it.Schedule.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// Observer is notified of engine progress.
type Observer interface {
	BatchArchived(records int)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(records int)

// BatchArchived implements Observer.
func (f ObserverFunc) BatchArchived(records int) { f(records) }

// HostChecker verifies that a store's host is reachable before any data
// moves.
type HostChecker interface {
	Check(ctx context.Context, host string) error
}

// HostCheckerFunc adapts a function to HostChecker.
type HostCheckerFunc func(ctx context.Context, host string) error

// Check implements HostChecker.
func (f HostCheckerFunc) Check(ctx context.Context, host string) error { return f(ctx, host) }
