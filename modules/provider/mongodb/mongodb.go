// Package mongodb registers the "mongodb" provider (alias "mongo") backed
// by the official MongoDB Go driver.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flemzord/dbarchiver/internal/archive"
	"github.com/flemzord/dbarchiver/internal/provider"
)

const connectTimeout = 3 * time.Second

func init() {
	provider.Register(provider.Info{
		Name:        "mongodb",
		Aliases:     []string{"mongo"},
		Description: "MongoDB collection (mongo-driver)",
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

// Store is a MongoDB source and target. It keeps one client per connection
// string until Close.
type Store struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*mongo.Client
}

// New creates a store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:  logger,
		clients: make(map[string]*mongo.Client),
	}
}

// Cursor implements archive.Source. Pages are read inside one session that
// the cursor owns until Close.
func (s *Store) Cursor(ctx context.Context, settings archive.SourceSettings, batchSize int) (archive.Cursor, error) {
	st, err := s.settings(settings)
	if err != nil {
		return nil, err
	}
	client, err := s.client(ctx, st)
	if err != nil {
		return nil, err
	}
	sess, err := client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("%w: mongodb: start session: %w", archive.ErrConnection, err)
	}
	coll := client.Database(st.Database).Collection(st.Collection)

	fetch := func(ctx context.Context, page archive.Page) ([]archive.Record, error) {
		opts := options.Find().
			SetSort(bson.D{{Key: st.IDColumn, Value: 1}}).
			SetLimit(int64(page.Limit))
		if st.Pagination == PaginateOffset {
			opts.SetSkip(int64(page.Offset))
		}

		sctx := mongo.NewSessionContext(ctx, sess)
		cur, err := coll.Find(sctx, st.query(page.After), opts)
		if err != nil {
			return nil, fmt.Errorf("mongodb: find at offset %d: %w", page.Offset, err)
		}
		var docs []bson.D
		if err := cur.All(sctx, &docs); err != nil {
			return nil, fmt.Errorf("mongodb: read page at offset %d: %w", page.Offset, err)
		}

		records := make([]archive.Record, len(docs))
		for i, d := range docs {
			records[i] = toRecord(d)
		}
		s.logger.Debug("mongodb: page fetched", "collection", st.Collection, "offset", page.Offset, "records", len(records))
		return records, nil
	}

	pager, err := archive.NewPager(archive.PagerConfig{
		BatchSize: batchSize,
		KeyField:  st.IDColumn,
		Fetch:     fetch,
		Release: func() error {
			sess.EndSession(context.Background())
			return nil
		},
	})
	if err != nil {
		sess.EndSession(ctx)
		return nil, err
	}
	return pager, nil
}

// Delete implements archive.Source with a single DeleteMany on the keys.
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
	client, err := s.client(ctx, st)
	if err != nil {
		return err
	}

	coll := client.Database(st.Database).Collection(st.Collection)
	res, err := coll.DeleteMany(ctx, bson.D{{Key: st.IDColumn, Value: bson.D{{Key: "$in", Value: keys}}}})
	if err != nil {
		return fmt.Errorf("mongodb: delete: %w", err)
	}
	if res.DeletedCount != int64(len(keys)) {
		s.logger.Warn("mongodb: fewer documents deleted than archived",
			"collection", st.Collection,
			"archived", len(keys),
			"deleted", res.DeletedCount,
		)
	}
	return nil
}

// RunScript implements archive.Target. The script is one command document
// or a JSON array of them, each sent with runCommand to the target
// database.
func (s *Store) RunScript(ctx context.Context, settings archive.TargetSettings, script string) error {
	st, err := s.settings(settings)
	if err != nil {
		return err
	}
	cmds, err := parseScript(script)
	if err != nil {
		return fmt.Errorf("%w: mongodb: %w", archive.ErrScriptExecution, err)
	}
	client, err := s.client(ctx, st)
	if err != nil {
		return err
	}

	db := client.Database(st.Database)
	for i, cmd := range cmds {
		if err := db.RunCommand(ctx, cmd).Err(); err != nil {
			return fmt.Errorf("%w: mongodb: command %d: %w", archive.ErrScriptExecution, i, err)
		}
	}
	return nil
}

// Insert implements archive.Target. Each record is unflattened and
// upserted by key in one ordered bulk write.
func (s *Store) Insert(ctx context.Context, settings archive.TargetSettings, records []archive.Record) error {
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
	client, err := s.client(ctx, st)
	if err != nil {
		return err
	}

	models := make([]mongo.WriteModel, len(records))
	for i, r := range records {
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: st.IDColumn, Value: keys[i]}}).
			SetReplacement(archive.Unflatten(r)).
			SetUpsert(true)
	}

	coll := client.Database(st.Database).Collection(st.Collection)
	if _, err := coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("mongodb: bulk upsert: %w", err)
	}
	return nil
}

// Close disconnects every client opened by the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for uri, c := range s.clients {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		if err := c.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb: disconnect: %w", err))
		}
		cancel()
		delete(s.clients, uri)
	}
	return errors.Join(errs...)
}

func (s *Store) settings(v any) (*Settings, error) {
	st, ok := v.(*Settings)
	if !ok || st == nil {
		return nil, fmt.Errorf("%w: mongodb: unexpected settings type %T", archive.ErrConfiguration, v)
	}
	return st, nil
}

// client returns the client for st's connection string, connecting and
// pinging it on first use.
func (s *Store) client(ctx context.Context, st *Settings) (*mongo.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[st.ConnectionString]; ok {
		return c, nil
	}

	opts := options.Client().
		ApplyURI(st.ConnectionString).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(connectTimeout)
	c, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: mongodb: connect: %w", archive.ErrConnection, err)
	}
	if err := c.Ping(ctx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: mongodb: ping: %w", archive.ErrConnection, err)
	}
	s.clients[st.ConnectionString] = c
	return c, nil
}

func recordKeys(records []archive.Record, field string) (bson.A, error) {
	keys := make(bson.A, len(records))
	for i, r := range records {
		k, err := r.Key(field)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		keys[i] = k
	}
	return keys, nil
}
