// Package archivetest provides test doubles for the archive package.
package archivetest

import (
	"context"
	"sync"

	"github.com/flemzord/dbarchiver/internal/archive"
)

// Settings is a settings value usable as both source and target settings.
type Settings struct {
	Key string
}

// KeyField implements archive.SourceSettings and archive.TargetSettings.
func (s Settings) KeyField() string {
	if s.Key == "" {
		return "id"
	}
	return s.Key
}

// Rows builds n records with ids start..start+n-1.
func Rows(start, n int) []archive.Record {
	out := make([]archive.Record, 0, n)
	for i := range n {
		var r archive.Record
		r.Set("id", start+i)
		r.Set("name", "row")
		out = append(out, r)
	}
	return out
}

// MockSource is a configurable test double for archive.Source.
type MockSource struct {
	CursorFunc func(ctx context.Context, settings archive.SourceSettings, batchSize int) (archive.Cursor, error)
	DeleteFunc func(ctx context.Context, settings archive.SourceSettings, records []archive.Record) error

	mu      sync.Mutex
	cursors int
	deleted [][]archive.Record
	log     *CallLog
}

// Compile-time interface check.
var _ archive.Source = (*MockSource)(nil)

// WithLog records calls into log.
func (m *MockSource) WithLog(log *CallLog) *MockSource {
	m.log = log
	return m
}

// Cursor implements archive.Source.
func (m *MockSource) Cursor(ctx context.Context, settings archive.SourceSettings, batchSize int) (archive.Cursor, error) {
	m.mu.Lock()
	m.cursors++
	m.mu.Unlock()
	m.log.add("cursor")

	if m.CursorFunc != nil {
		return m.CursorFunc(ctx, settings, batchSize)
	}
	return &MockCursor{}, nil
}

// Delete implements archive.Source.
func (m *MockSource) Delete(ctx context.Context, settings archive.SourceSettings, records []archive.Record) error {
	m.log.add("delete")
	if m.DeleteFunc != nil {
		if err := m.DeleteFunc(ctx, settings, records); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.deleted = append(m.deleted, records)
	m.mu.Unlock()
	return nil
}

// CursorCount returns the number of Cursor calls.
func (m *MockSource) CursorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors
}

// Deleted returns the batches passed to successful Delete calls.
func (m *MockSource) Deleted() [][]archive.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleted
}

// MockTarget is a configurable test double for archive.Target.
type MockTarget struct {
	RunScriptFunc func(ctx context.Context, settings archive.TargetSettings, script string) error
	InsertFunc    func(ctx context.Context, settings archive.TargetSettings, records []archive.Record) error

	mu       sync.Mutex
	scripts  []string
	inserted [][]archive.Record
	log      *CallLog
}

// Compile-time interface check.
var _ archive.Target = (*MockTarget)(nil)

// WithLog records calls into log.
func (m *MockTarget) WithLog(log *CallLog) *MockTarget {
	m.log = log
	return m
}

// RunScript implements archive.Target.
func (m *MockTarget) RunScript(ctx context.Context, settings archive.TargetSettings, script string) error {
	m.log.add("script")
	m.mu.Lock()
	m.scripts = append(m.scripts, script)
	m.mu.Unlock()
	if m.RunScriptFunc != nil {
		return m.RunScriptFunc(ctx, settings, script)
	}
	return nil
}

// Insert implements archive.Target.
func (m *MockTarget) Insert(ctx context.Context, settings archive.TargetSettings, records []archive.Record) error {
	m.log.add("insert")
	if m.InsertFunc != nil {
		if err := m.InsertFunc(ctx, settings, records); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.inserted = append(m.inserted, records)
	m.mu.Unlock()
	return nil
}

// Scripts returns the scripts passed to RunScript.
func (m *MockTarget) Scripts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scripts
}

// Inserted returns the batches passed to successful Insert calls.
func (m *MockTarget) Inserted() [][]archive.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserted
}

// MockCursor serves a fixed list of pages.
type MockCursor struct {
	Pages [][]archive.Record
	// NextErr, when set, is returned by the Next call with index NextErrAt.
	NextErr   error
	NextErrAt int
	CloseErr  error

	mu     sync.Mutex
	pos    int
	nexts  int
	closes int
	batch  []archive.Record
	done   bool
}

// Compile-time interface check.
var _ archive.Cursor = (*MockCursor)(nil)

// Next implements archive.Cursor.
func (c *MockCursor) Next(_ context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done || c.closes > 0 {
		return false, nil
	}
	idx := c.nexts
	c.nexts++
	if c.NextErr != nil && idx == c.NextErrAt {
		return false, c.NextErr
	}
	if c.pos >= len(c.Pages) {
		c.done = true
		c.batch = nil
		return false, nil
	}
	c.batch = c.Pages[c.pos]
	c.pos++
	return true, nil
}

// Batch implements archive.Cursor.
func (c *MockCursor) Batch() []archive.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batch
}

// Close implements archive.Cursor.
func (c *MockCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return c.CloseErr
}

// CloseCount returns the number of Close calls.
func (c *MockCursor) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// NextCount returns the number of Next calls that reached the pages.
func (c *MockCursor) NextCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nexts
}

// CallLog records the order of store calls across a source and a target.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *CallLog) add(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

// Calls returns the recorded calls in order.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}
