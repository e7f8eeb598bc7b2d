// Package sqlstore implements archive.Source and archive.Target on top of
// database/sql. The SQL providers differ only in their Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/dbarchiver/internal/archive"
	"github.com/flemzord/dbarchiver/internal/provider"
)

// Compile-time interface guards.
var (
	_ archive.Source = (*Store)(nil)
	_ archive.Target = (*Store)(nil)
)

// Store is a SQL source and target. It keeps one pool per connection string
// until Close.
type Store struct {
	name    string
	dialect Dialect
	logger  *slog.Logger

	mu    sync.Mutex
	pools map[string]*sql.DB
}

// New creates a store speaking dialect. name prefixes error messages.
func New(name string, dialect Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		name:    name,
		dialect: dialect,
		logger:  logger,
		pools:   make(map[string]*sql.DB),
	}
}

// Register adds a SQL provider offering both capabilities.
func Register(name string, aliases []string, description string, dialect Dialect) {
	provider.Register(provider.Info{
		Name:        name,
		Aliases:     aliases,
		Description: description,
		Source: &provider.SourceInfo{
			NewSettings: func() archive.SourceSettings { return new(Settings) },
			New:         func(d provider.Deps) archive.Source { return New(name, dialect, d.Logger) },
		},
		Target: &provider.TargetInfo{
			NewSettings: func() archive.TargetSettings { return new(Settings) },
			New:         func(d provider.Deps) archive.Target { return New(name, dialect, d.Logger) },
		},
	})
}

// Cursor implements archive.Source. The cursor holds one connection of the
// pool until it is closed.
func (s *Store) Cursor(ctx context.Context, settings archive.SourceSettings, batchSize int) (archive.Cursor, error) {
	st, err := s.settings(settings)
	if err != nil {
		return nil, err
	}
	db, err := s.pool(ctx, st)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: acquire connection: %w", archive.ErrConnection, s.name, err)
	}

	fetch := func(ctx context.Context, page archive.Page) ([]archive.Record, error) {
		q, args := selectPage(s.dialect, st, page.Limit, page.Offset, page.After)
		rows, err := conn.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("%s: select page at offset %d: %w", s.name, page.Offset, err)
		}
		records, err := scanRecords(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: read page at offset %d: %w", s.name, page.Offset, err)
		}
		s.logger.Debug("sqlstore: page fetched", "table", st.Table, "offset", page.Offset, "records", len(records))
		return records, nil
	}

	pager, err := archive.NewPager(archive.PagerConfig{
		BatchSize: batchSize,
		KeyField:  st.IDColumn,
		Fetch:     fetch,
		Release:   conn.Close,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return pager, nil
}

// Delete implements archive.Source. All rows are deleted in one
// transaction, so a failure leaves the source untouched.
func (s *Store) Delete(ctx context.Context, settings archive.SourceSettings, records []archive.Record) error {
	if len(records) == 0 {
		return nil
	}
	st, err := s.settings(settings)
	if err != nil {
		return err
	}
	keys, err := recordKeys(records, st.IDColumn)
	if err != nil {
		return err
	}
	db, err := s.pool(ctx, st)
	if err != nil {
		return err
	}

	return s.inTx(ctx, db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, deleteByKey(s.dialect, st))
		if err != nil {
			return fmt.Errorf("%s: prepare delete: %w", s.name, err)
		}
		defer func() { _ = stmt.Close() }()

		for _, k := range keys {
			if _, err := stmt.ExecContext(ctx, k); err != nil {
				return fmt.Errorf("%s: delete %v: %w", s.name, k, err)
			}
		}
		return nil
	})
}

// RunScript implements archive.Target. The script is sent as a single
// statement batch; drivers that need an option to accept several
// statements expect it in the connection string.
func (s *Store) RunScript(ctx context.Context, settings archive.TargetSettings, script string) error {
	st, err := s.settings(settings)
	if err != nil {
		return err
	}
	db, err := s.pool(ctx, st)
	if err != nil {
		return err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: acquire connection: %w", archive.ErrConnection, s.name, err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("%w: %s: %w", archive.ErrScriptExecution, s.name, err)
	}
	return nil
}

// Insert implements archive.Target. Rows are upserted in one transaction.
func (s *Store) Insert(ctx context.Context, settings archive.TargetSettings, records []archive.Record) error {
	if len(records) == 0 {
		return nil
	}
	st, err := s.settings(settings)
	if err != nil {
		return err
	}
	if _, err := recordKeys(records, st.IDColumn); err != nil {
		return err
	}
	db, err := s.pool(ctx, st)
	if err != nil {
		return err
	}

	table := tableName(s.dialect, st)
	return s.inTx(ctx, db, func(tx *sql.Tx) error {
		for _, r := range records {
			cols := r.Keys()
			key := indexOf(cols, st.IDColumn)
			q := s.dialect.Upsert(table, cols, key)
			if _, err := tx.ExecContext(ctx, q, r.Values()...); err != nil {
				return fmt.Errorf("%s: insert %v: %w", s.name, r.Values()[key], err)
			}
		}
		return nil
	})
}

// Close closes every pool opened by the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for dsn, db := range s.pools {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: close pool: %w", s.name, err))
		}
		delete(s.pools, dsn)
	}
	return errors.Join(errs...)
}

func (s *Store) settings(v any) (*Settings, error) {
	st, ok := v.(*Settings)
	if !ok || st == nil {
		return nil, fmt.Errorf("%w: %s: unexpected settings type %T", archive.ErrConfiguration, s.name, v)
	}
	return st, nil
}

// pool returns the pool for st's connection string, opening and pinging it
// on first use.
func (s *Store) pool(ctx context.Context, st *Settings) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.pools[st.ConnectionString]; ok {
		return db, nil
	}
	db, err := s.dialect.Open(st.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: open: %w", archive.ErrConnection, s.name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: ping: %w", archive.ErrConnection, s.name, err)
	}
	s.pools[st.ConnectionString] = db
	return db, nil
}

func (s *Store) inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: begin: %w", archive.ErrConnection, s.name, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", s.name, err)
	}
	return nil
}

// recordKeys returns the key of every record, or ErrMissingKey naming the
// first record without one.
func recordKeys(records []archive.Record, field string) ([]any, error) {
	keys := make([]any, len(records))
	for i, r := range records {
		k, err := r.Key(field)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		keys[i] = k
	}
	return keys, nil
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}
