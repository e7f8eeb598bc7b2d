package bolt_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"github.com/flemzord/dbarchiver/internal/archive"
	"github.com/flemzord/dbarchiver/modules/provider/bolt"
)

func settings(t *testing.T, name string) *bolt.Settings {
	t.Helper()

	s := &bolt.Settings{Path: filepath.Join(t.TempDir(), name), Bucket: "events"}
	s.SetDefaults()
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return s
}

func newStore(t *testing.T) *bolt.Store {
	t.Helper()

	s := bolt.New(nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func records(ids ...string) []archive.Record {
	out := make([]archive.Record, len(ids))
	for i, id := range ids {
		var r archive.Record
		r.Set("id", id)
		r.Set("body", "payload-"+id)
		out[i] = r
	}
	return out
}

// keys opens the file directly and lists the bucket's keys.
func keys(t *testing.T, s *bolt.Settings) []string {
	t.Helper()

	db, err := bbolt.Open(s.Path, 0o600, &bbolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	var out []string
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(s.Bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	return out
}

func TestSettings_Validate(t *testing.T) {
	t.Parallel()

	s := &bolt.Settings{Timeout: -time.Second}
	err := s.Validate()
	if err == nil {
		t.Fatal("expected error")
	}

	ok := &bolt.Settings{Path: "x.db", Bucket: "b"}
	ok.SetDefaults()
	if ok.KeyField() != "id" || ok.Timeout != 3*time.Second {
		t.Errorf("defaults = %+v", ok)
	}
}

func TestInsertAndPage(t *testing.T) {
	t.Parallel()

	st := settings(t, "data.db")
	store := newStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, st, records("a", "b", "c", "d", "e")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	cur, err := store.Cursor(ctx, st, 2)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	defer func() { _ = cur.Close() }()

	var got []string
	for {
		ok, err := cur.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		for _, r := range cur.Batch() {
			v, _ := r.Get("id")
			got = append(got, v.(string))
		}
	}
	if fmt.Sprint(got) != "[a b c d e]" {
		t.Errorf("ids = %v, want [a b c d e]", got)
	}
}

func TestInsert_OverwritesSameKey(t *testing.T) {
	t.Parallel()

	st := settings(t, "data.db")
	store := newStore(t)
	ctx := context.Background()

	for range 2 {
		if err := store.Insert(ctx, st, records("1", "2")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	_ = store.Close()

	if got := keys(t, st); len(got) != 2 {
		t.Errorf("keys = %v, want 2", got)
	}
}

func TestInsert_NumericKeyFromJSON(t *testing.T) {
	t.Parallel()

	st := settings(t, "data.db")
	store := newStore(t)

	var r archive.Record
	if err := json.Unmarshal([]byte(`{"id": 42, "v": true}`), &r); err != nil {
		t.Fatal(err)
	}
	if err := store.Insert(context.Background(), st, []archive.Record{r}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	_ = store.Close()

	if got := keys(t, st); len(got) != 1 || got[0] != "42" {
		t.Errorf("keys = %v, want [42]", got)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	st := settings(t, "data.db")
	store := newStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, st, records("a", "b", "c")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Delete(ctx, st, records("a", "c")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_ = store.Close()

	if got := keys(t, st); fmt.Sprint(got) != "[b]" {
		t.Errorf("keys = %v, want [b]", got)
	}
}

func TestDelete_MissingKey(t *testing.T) {
	t.Parallel()

	st := settings(t, "data.db")
	store := newStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, st, records("a")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	bad := append(records("a"), archive.RecordFromMap(map[string]any{"body": "x"}))
	if err := store.Delete(ctx, st, bad); !errors.Is(err, archive.ErrMissingKey) {
		t.Fatalf("err = %v, want ErrMissingKey", err)
	}
	_ = store.Close()

	if got := keys(t, st); len(got) != 1 {
		t.Errorf("keys = %v, want [a] untouched", got)
	}
}

func TestCursor_MissingBucket(t *testing.T) {
	t.Parallel()

	st := settings(t, "empty.db")
	store := newStore(t)
	ctx := context.Background()

	cur, err := store.Cursor(ctx, st, 10)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	defer func() { _ = cur.Close() }()

	if _, err := cur.Next(ctx); !errors.Is(err, bolt.ErrBucketNotFound) {
		t.Errorf("err = %v, want ErrBucketNotFound", err)
	}
}

func TestRunScript(t *testing.T) {
	t.Parallel()

	st := settings(t, "data.db")
	store := newStore(t)
	ctx := context.Background()

	script := "# prepare\ncreate-bucket events\ncreate-bucket scratch\n\ndelete-bucket scratch\ndelete-bucket never-existed\n"
	if err := store.RunScript(ctx, st, script); err != nil {
		t.Fatalf("RunScript: %v", err)
	}

	err := store.RunScript(ctx, st, "drop everything")
	if !errors.Is(err, archive.ErrScriptExecution) {
		t.Errorf("err = %v, want ErrScriptExecution", err)
	}
}

func TestOpen_LockTimeout(t *testing.T) {
	t.Parallel()

	st := settings(t, "locked.db")
	st.Timeout = 50 * time.Millisecond

	// Another opener of the file, such as a second process, holds the lock.
	holder, err := bbolt.Open(st.Path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = holder.Close() })

	err = newStore(t).Insert(context.Background(), st, records("b"))
	if !errors.Is(err, archive.ErrConnection) {
		t.Errorf("err = %v, want ErrConnection", err)
	}
}

func TestStores_ShareFileHandle(t *testing.T) {
	t.Parallel()

	st := settings(t, "shared.db")
	st.Timeout = 100 * time.Millisecond
	ctx := context.Background()

	first, second := bolt.New(nil), bolt.New(nil)
	if err := first.Insert(ctx, st, records("a")); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	if err := second.Insert(ctx, st, records("b")); err != nil {
		t.Fatalf("second Insert on the same file: %v", err)
	}

	// The file stays open for second after first releases it.
	if err := first.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := second.Insert(ctx, st, records("c")); err != nil {
		t.Fatalf("Insert after first Close: %v", err)
	}
	if err := second.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// Released by both, so a plain open succeeds.
	if got := keys(t, st); fmt.Sprint(got) != "[a b c]" {
		t.Errorf("keys = %v", got)
	}
}

func TestArchive_BetweenBucketsOfOneFile(t *testing.T) {
	t.Parallel()

	src := settings(t, "one.db")
	dst := *src
	dst.Bucket = "archive"
	ctx := context.Background()

	seed := bolt.New(nil)
	if err := seed.Insert(ctx, src, records("01", "02", "03", "04", "05")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_ = seed.Close()

	source, target := bolt.New(nil), bolt.New(nil)
	ts := archive.TransferSettings{
		Source: archive.SourceConfig{Provider: "bbolt", BatchSize: 2, DeleteAfterArchived: true, Settings: src},
		Target: archive.TargetConfig{Provider: "bbolt", Settings: &dst},
	}
	err := archive.New(archive.Config{Source: source, Target: target}).Archive(ctx, ts)
	_ = source.Close()
	_ = target.Close()
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}

	if got := keys(t, src); len(got) != 0 {
		t.Errorf("source keys = %v, want none", got)
	}
	if got := keys(t, &dst); fmt.Sprint(got) != "[01 02 03 04 05]" {
		t.Errorf("archive keys = %v", got)
	}
}

func TestArchive_EndToEnd(t *testing.T) {
	t.Parallel()

	src := settings(t, "source.db")
	dst := settings(t, "target.db")
	dst.Bucket = "archive"
	ctx := context.Background()

	seed := newStore(t)
	if err := seed.Insert(ctx, src, records("01", "02", "03", "04")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_ = seed.Close()

	source, target := newStore(t), newStore(t)
	ts := archive.TransferSettings{
		Source: archive.SourceConfig{Provider: "bbolt", BatchSize: 3, DeleteAfterArchived: true, Settings: src},
		Target: archive.TargetConfig{Provider: "bbolt", PreScript: "create-bucket archive", Settings: dst},
	}
	if err := archive.New(archive.Config{Source: source, Target: target}).Archive(ctx, ts); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	_ = source.Close()
	_ = target.Close()

	if got := keys(t, src); len(got) != 0 {
		t.Errorf("source keys = %v, want none", got)
	}
	if got := keys(t, dst); fmt.Sprint(got) != "[01 02 03 04]" {
		t.Errorf("target keys = %v", got)
	}
}
