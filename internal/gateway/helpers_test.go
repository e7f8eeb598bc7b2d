package gateway

import (
	"context"
	"sync"

	"github.com/flemzord/dbarchiver/internal/cron"
)

// fakeRunner is a JobRunner with canned statuses and trigger results.
type fakeRunner struct {
	statuses   []cron.JobStatus
	triggerErr error

	mu        sync.Mutex
	triggered []string
}

func (f *fakeRunner) Jobs() []cron.JobStatus { return f.statuses }

func (f *fakeRunner) Trigger(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, name)
	return f.triggerErr
}

func (f *fakeRunner) Triggered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.triggered...)
}

// fakeReloader records reload calls.
type fakeReloader struct {
	err   error
	calls int
}

func (f *fakeReloader) Reload(context.Context) error {
	f.calls++
	return f.err
}

func staticAuth(cfg AuthConfig) func() AuthConfig {
	return func() AuthConfig { return cfg }
}
