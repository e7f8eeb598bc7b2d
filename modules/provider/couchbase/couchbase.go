// Package couchbase registers the "couchbase" provider (alias "cb") backed
// by the Couchbase Go SDK. Sources page through a collection with N1QL and
// targets upsert documents by key.
package couchbase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchbase/gocb/v2"
	"golang.org/x/sync/errgroup"

	"github.com/flemzord/dbarchiver/internal/archive"
	"github.com/flemzord/dbarchiver/internal/provider"
)

const (
	connectTimeout = 5 * time.Second

	// maxInFlight bounds concurrent key-value operations per batch.
	maxInFlight = 16
)

func init() {
	provider.Register(provider.Info{
		Name:        "couchbase",
		Aliases:     []string{"cb"},
		Description: "Couchbase collection (gocb)",
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

// Compile-time interface guards.
var (
	_ archive.Source = (*Store)(nil)
	_ archive.Target = (*Store)(nil)
)

// Store is a Couchbase source and target. It keeps one cluster connection
// per connection string and user until Close.
type Store struct {
	logger *slog.Logger

	mu       sync.Mutex
	clusters map[string]*gocb.Cluster
}

// New creates a store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:   logger,
		clusters: make(map[string]*gocb.Cluster),
	}
}

// Cursor implements archive.Source.
func (s *Store) Cursor(ctx context.Context, settings archive.SourceSettings, batchSize int) (archive.Cursor, error) {
	st, err := s.settings(settings)
	if err != nil {
		return nil, err
	}
	cluster, err := s.cluster(ctx, st)
	if err != nil {
		return nil, err
	}

	fetch := func(ctx context.Context, page archive.Page) ([]archive.Record, error) {
		stmt, args := st.selectPage(page.Limit, page.Offset, page.After)
		res, err := cluster.Query(stmt, &gocb.QueryOptions{
			Context:              ctx,
			PositionalParameters: args,
			Readonly:             true,
		})
		if err != nil {
			return nil, fmt.Errorf("couchbase: query at offset %d: %w", page.Offset, err)
		}
		defer res.Close()

		var records []archive.Record
		for res.Next() {
			var r archive.Record
			if err := res.Row(&r); err != nil {
				return nil, fmt.Errorf("couchbase: decode row at offset %d: %w", page.Offset, err)
			}
			records = append(records, archive.Flatten(r))
		}
		if err := res.Err(); err != nil {
			return nil, fmt.Errorf("couchbase: read page at offset %d: %w", page.Offset, err)
		}
		s.logger.Debug("couchbase: page fetched", "bucket", st.Bucket, "collection", st.Collection, "offset", page.Offset, "records", len(records))
		return records, nil
	}

	pager, err := archive.NewPager(archive.PagerConfig{
		BatchSize: batchSize,
		KeyField:  st.KeyProperty,
		Fetch:     fetch,
	})
	if err != nil {
		return nil, err
	}
	return pager, nil
}

// Delete implements archive.Source. Documents are removed by key; a key
// that is already gone is logged and skipped.
func (s *Store) Delete(ctx context.Context, settings archive.SourceSettings, records []archive.Record) error {
	if len(records) == 0 {
		return nil
	}
	st, err := s.settings(settings)
	if err != nil {
		return err
	}
	ids, err := documentIDs(records, st.KeyProperty)
	if err != nil {
		return err
	}
	cluster, err := s.cluster(ctx, st)
	if err != nil {
		return err
	}

	coll := collection(cluster, st)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	for _, id := range ids {
		g.Go(func() error {
			_, err := coll.Remove(id, &gocb.RemoveOptions{Context: gctx})
			switch {
			case errors.Is(err, gocb.ErrDocumentNotFound):
				s.logger.Warn("couchbase: archived document already removed", "collection", st.Collection, "key", id)
				return nil
			case err != nil:
				return fmt.Errorf("couchbase: remove %q: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// RunScript implements archive.Target. The script is a single N1QL
// statement; every result row is drained so statement errors surface.
func (s *Store) RunScript(ctx context.Context, settings archive.TargetSettings, script string) error {
	st, err := s.settings(settings)
	if err != nil {
		return err
	}
	cluster, err := s.cluster(ctx, st)
	if err != nil {
		return err
	}

	res, err := cluster.Query(script, &gocb.QueryOptions{Context: ctx})
	if err != nil {
		return fmt.Errorf("%w: couchbase: %w", archive.ErrScriptExecution, err)
	}
	for res.Next() {
	}
	if err := res.Err(); err != nil {
		_ = res.Close()
		return fmt.Errorf("%w: couchbase: %w", archive.ErrScriptExecution, err)
	}
	if err := res.Close(); err != nil {
		return fmt.Errorf("%w: couchbase: %w", archive.ErrScriptExecution, err)
	}
	return nil
}

// Insert implements archive.Target. Each record is unflattened and
// upserted under its key.
func (s *Store) Insert(ctx context.Context, settings archive.TargetSettings, records []archive.Record) error {
	if len(records) == 0 {
		return nil
	}
	st, err := s.settings(settings)
	if err != nil {
		return err
	}
	ids, err := documentIDs(records, st.KeyProperty)
	if err != nil {
		return err
	}
	cluster, err := s.cluster(ctx, st)
	if err != nil {
		return err
	}

	coll := collection(cluster, st)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	for i, r := range records {
		g.Go(func() error {
			if _, err := coll.Upsert(ids[i], archive.Unflatten(r), &gocb.UpsertOptions{Context: gctx}); err != nil {
				return fmt.Errorf("couchbase: upsert %q: %w", ids[i], err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close closes every cluster connection opened by the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for k, c := range s.clusters {
		if err := c.Close(nil); err != nil {
			errs = append(errs, fmt.Errorf("couchbase: close: %w", err))
		}
		delete(s.clusters, k)
	}
	return errors.Join(errs...)
}

func (s *Store) settings(v any) (*Settings, error) {
	st, ok := v.(*Settings)
	if !ok || st == nil {
		return nil, fmt.Errorf("%w: couchbase: unexpected settings type %T", archive.ErrConfiguration, v)
	}
	return st, nil
}

// cluster returns the connection for st, connecting and waiting for the
// query and key-value services on first use.
func (s *Store) cluster(ctx context.Context, st *Settings) (*gocb.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := st.ConnectionString + "\x00" + st.Username
	if c, ok := s.clusters[k]; ok {
		return c, nil
	}

	c, err := gocb.Connect(st.ConnectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: st.Username,
			Password: st.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: couchbase: connect: %w", archive.ErrConnection, err)
	}
	err = c.WaitUntilReady(connectTimeout, &gocb.WaitUntilReadyOptions{
		Context:      ctx,
		ServiceTypes: []gocb.ServiceType{gocb.ServiceTypeKeyValue, gocb.ServiceTypeQuery},
	})
	if err != nil {
		_ = c.Close(nil)
		return nil, fmt.Errorf("%w: couchbase: wait until ready: %w", archive.ErrConnection, err)
	}
	s.clusters[k] = c
	return c, nil
}

func collection(c *gocb.Cluster, st *Settings) *gocb.Collection {
	return c.Bucket(st.Bucket).Scope(st.Scope).Collection(st.Collection)
}

// documentIDs resolves the document key of every record before any
// operation is sent.
func documentIDs(records []archive.Record, field string) ([]string, error) {
	ids := make([]string, len(records))
	for i, r := range records {
		k, err := r.Key(field)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		id := documentID(k)
		if id == "" {
			return nil, fmt.Errorf("record %d: %w: %q is empty", i, archive.ErrMissingKey, field)
		}
		ids[i] = id
	}
	return ids, nil
}

// documentID renders a key value as a document key.
func documentID(v any) string {
	switch k := v.(type) {
	case nil:
		return ""
	case string:
		return k
	case fmt.Stringer:
		return k.String()
	default:
		return fmt.Sprint(k)
	}
}
