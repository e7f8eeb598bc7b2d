// Package bolt registers the "bbolt" provider, an embedded key/value
// store. Records are kept as JSON objects keyed by the string form of
// their key field, so they page in byte order of that string.
package bolt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/flemzord/dbarchiver/internal/archive"
	"github.com/flemzord/dbarchiver/internal/provider"
)

func init() {
	provider.Register(provider.Info{
		Name:        "bbolt",
		Aliases:     []string{"bolt"},
		Description: "Embedded bbolt key/value file",
		Source: &provider.SourceInfo{
			NewSettings: func() archive.SourceSettings { return new(Settings) },
			New:         func(d provider.Deps) archive.Source { return New(d.Logger) },
		},
		Target: &provider.TargetInfo{
			NewSettings: func() archive.TargetSettings { return new(Settings) },
			New:         func(d provider.Deps) archive.Target { return New(d.Logger) },
		},
	})
}

// ErrBucketNotFound is returned when a source bucket does not exist.
var ErrBucketNotFound = errors.New("bbolt: bucket not found")

// Compile-time interface guards.
var (
	_ archive.Source = (*Store)(nil)
	_ archive.Target = (*Store)(nil)
)

// handles shares open databases between stores. bbolt locks its file
// exclusively, so a job reading one bucket and writing another of the same
// file must go through a single handle.
var handles = struct {
	sync.Mutex
	dbs map[string]*sharedDB
}{dbs: make(map[string]*sharedDB)}

type sharedDB struct {
	db   *bbolt.DB
	refs int
}

// acquire returns the process-wide handle for path, opening it on first use.
func acquire(path string, timeout time.Duration) (*bbolt.DB, error) {
	handles.Lock()
	defer handles.Unlock()

	if h, ok := handles.dbs[path]; ok {
		h.refs++
		return h.db, nil
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	handles.dbs[path] = &sharedDB{db: db, refs: 1}
	return db, nil
}

// release drops one reference to path and closes the file with the last.
func release(path string) error {
	handles.Lock()
	defer handles.Unlock()

	h, ok := handles.dbs[path]
	if !ok {
		return nil
	}
	h.refs--
	if h.refs > 0 {
		return nil
	}
	delete(handles.dbs, path)
	return h.db.Close()
}

// canonicalPath keys shared handles so that "a.db" and "./a.db" match.
func canonicalPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Store is a bbolt source and target. Each path is acquired once per store
// and released on Close; stores of the same process share the handle.
type Store struct {
	logger *slog.Logger

	mu  sync.Mutex
	dbs map[string]*bbolt.DB
}

// New creates a store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger: logger,
		dbs:    make(map[string]*bbolt.DB),
	}
}

// Cursor implements archive.Source. Each page is read in its own read
// transaction, resuming after the last key handed out.
func (s *Store) Cursor(_ context.Context, settings archive.SourceSettings, batchSize int) (archive.Cursor, error) {
	st, err := s.settings(settings)
	if err != nil {
		return nil, err
	}
	db, err := s.open(st)
	if err != nil {
		return nil, err
	}

	var last []byte
	fetch := func(ctx context.Context, page archive.Page) ([]archive.Record, error) {
		var records []archive.Record
		var lastKey []byte
		err := db.View(func(tx *bbolt.Tx) error {
			b := tx.Bucket([]byte(st.Bucket))
			if b == nil {
				return fmt.Errorf("%w: %q", ErrBucketNotFound, st.Bucket)
			}
			c := b.Cursor()
			k, v := c.First()
			if last != nil {
				k, v = c.Seek(last)
				if bytes.Equal(k, last) {
					k, v = c.Next()
				}
			}
			for ; k != nil && len(records) < page.Limit; k, v = c.Next() {
				if v == nil {
					continue // nested bucket
				}
				var r archive.Record
				if err := json.Unmarshal(v, &r); err != nil {
					return fmt.Errorf("bbolt: decode %q: %w", k, err)
				}
				records = append(records, r)
				lastKey = bytes.Clone(k)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if lastKey != nil {
			last = lastKey
		}
		return records, nil
	}

	return archive.NewPager(archive.PagerConfig{
		BatchSize: batchSize,
		KeyField:  st.Field,
		Fetch:     fetch,
	})
}

// Delete implements archive.Source. All keys are removed in one write
// transaction.
func (s *Store) Delete(_ context.Context, settings archive.SourceSettings, records []archive.Record) error {
	if len(records) == 0 {
		return nil
	}
	st, err := s.settings(settings)
	if err != nil {
		return err
	}
	keys, err := recordKeys(records, st.Field)
	if err != nil {
		return err
	}
	db, err := s.open(st)
	if err != nil {
		return err
	}

	return db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(st.Bucket))
		if b == nil {
			return fmt.Errorf("%w: %q", ErrBucketNotFound, st.Bucket)
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("bbolt: delete %q: %w", k, err)
			}
		}
		return nil
	})
}

// RunScript implements archive.Target. Each non-empty line is one of
// "create-bucket <name>" or "delete-bucket <name>"; lines starting with #
// are comments. The script runs in one write transaction.
func (s *Store) RunScript(_ context.Context, settings archive.TargetSettings, script string) error {
	st, err := s.settings(settings)
	if err != nil {
		return err
	}
	cmds, err := parseScript(script)
	if err != nil {
		return fmt.Errorf("%w: bbolt: %w", archive.ErrScriptExecution, err)
	}
	db, err := s.open(st)
	if err != nil {
		return err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, c := range cmds {
			var err error
			switch c.op {
			case "create-bucket":
				_, err = tx.CreateBucketIfNotExists([]byte(c.bucket))
			case "delete-bucket":
				err = tx.DeleteBucket([]byte(c.bucket))
				if errors.Is(err, bbolt.ErrBucketNotFound) {
					err = nil
				}
			}
			if err != nil {
				return fmt.Errorf("line %d: %s %s: %w", c.line, c.op, c.bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: bbolt: %w", archive.ErrScriptExecution, err)
	}
	return nil
}

// Insert implements archive.Target. Records overwrite any value stored
// under the same key.
func (s *Store) Insert(_ context.Context, settings archive.TargetSettings, records []archive.Record) error {
	if len(records) == 0 {
		return nil
	}
	st, err := s.settings(settings)
	if err != nil {
		return err
	}
	keys, err := recordKeys(records, st.Field)
	if err != nil {
		return err
	}
	db, err := s.open(st)
	if err != nil {
		return err
	}

	return db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(st.Bucket))
		if err != nil {
			return fmt.Errorf("bbolt: create bucket %q: %w", st.Bucket, err)
		}
		for i, r := range records {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("bbolt: encode %q: %w", keys[i], err)
			}
			if err := b.Put(keys[i], data); err != nil {
				return fmt.Errorf("bbolt: put %q: %w", keys[i], err)
			}
		}
		return nil
	})
}

// Close releases every database opened by the store. A file stays open
// while another store still uses it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for path := range s.dbs {
		if err := release(path); err != nil {
			errs = append(errs, fmt.Errorf("bbolt: close %s: %w", path, err))
		}
		delete(s.dbs, path)
	}
	return errors.Join(errs...)
}

func (s *Store) settings(v any) (*Settings, error) {
	st, ok := v.(*Settings)
	if !ok || st == nil {
		return nil, fmt.Errorf("%w: bbolt: unexpected settings type %T", archive.ErrConfiguration, v)
	}
	return st, nil
}

func (s *Store) open(st *Settings) (*bbolt.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := canonicalPath(st.Path)
	if db, ok := s.dbs[path]; ok {
		return db, nil
	}
	db, err := acquire(path, st.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: bbolt: open %s: %w", archive.ErrConnection, st.Path, err)
	}
	s.dbs[path] = db
	return db, nil
}

// recordKeys returns the bucket key of every record, or ErrMissingKey.
func recordKeys(records []archive.Record, field string) ([][]byte, error) {
	keys := make([][]byte, len(records))
	for i, r := range records {
		v, err := r.Key(field)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		keys[i] = []byte(keyString(v))
	}
	return keys, nil
}

func keyString(v any) string {
	switch k := v.(type) {
	case string:
		return k
	case []byte:
		return string(k)
	case json.Number:
		return k.String()
	default:
		return fmt.Sprint(k)
	}
}

type command struct {
	line   int
	op     string
	bucket string
}

func parseScript(script string) ([]command, error) {
	var cmds []command
	sc := bufio.NewScanner(strings.NewReader(script))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 || (fields[0] != "create-bucket" && fields[0] != "delete-bucket") {
			return nil, fmt.Errorf("line %d: unknown command %q", n, line)
		}
		cmds = append(cmds, command{line: n, op: fields[0], bucket: fields[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return cmds, nil
}
