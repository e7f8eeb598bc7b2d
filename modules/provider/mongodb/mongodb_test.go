package mongodb

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/flemzord/dbarchiver/internal/archive"
	"github.com/flemzord/dbarchiver/internal/provider"
)

func validSettings(mutate func(*Settings)) *Settings {
	s := &Settings{
		ConnectionString: "mongodb://localhost:27017",
		Database:         "app",
		Collection:       "events",
	}
	if mutate != nil {
		mutate(s)
	}
	s.SetDefaults()
	return s
}

func TestRegistered(t *testing.T) {
	t.Parallel()

	info, err := provider.Resolve("Mongo", provider.CapSource)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.Name != "mongodb" {
		t.Errorf("Name = %s", info.Name)
	}
}

func TestSettings_Defaults(t *testing.T) {
	t.Parallel()

	s := validSettings(nil)
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if s.KeyField() != "_id" {
		t.Errorf("KeyField = %q, want _id", s.KeyField())
	}
	if s.Pagination != PaginateOffset {
		t.Errorf("Pagination = %q", s.Pagination)
	}
}

func TestSettings_InvalidFilter(t *testing.T) {
	t.Parallel()

	s := validSettings(func(s *Settings) { s.Filter = `{"status": ` })
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "filter") {
		t.Errorf("Validate = %v, want filter error", err)
	}
}

func TestSettings_MissingFields(t *testing.T) {
	t.Parallel()

	s := &Settings{}
	s.SetDefaults()
	err := s.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"connection_string", "database", "collection"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()

	plain := validSettings(nil)
	if err := plain.Validate(); err != nil {
		t.Fatal(err)
	}
	if got := plain.query(nil); len(got) != 0 {
		t.Errorf("unfiltered query = %v, want empty", got)
	}

	filtered := validSettings(func(s *Settings) {
		s.Filter = `{"status": "closed"}`
		s.Pagination = PaginateKeyset
	})
	if err := filtered.Validate(); err != nil {
		t.Fatal(err)
	}

	first := filtered.query(nil)
	if !reflect.DeepEqual(first, bson.D{{Key: "status", Value: "closed"}}) {
		t.Errorf("first page query = %v", first)
	}

	next := filtered.query(int32(7))
	want := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "status", Value: "closed"}},
		bson.D{{Key: "_id", Value: bson.D{{Key: "$gt", Value: int32(7)}}}},
	}}}
	if !reflect.DeepEqual(next, want) {
		t.Errorf("next page query = %v\nwant %v", next, want)
	}
}

func TestQuery_OffsetIgnoresAfter(t *testing.T) {
	t.Parallel()

	s := validSettings(nil)
	if got := s.query(int32(3)); len(got) != 0 {
		t.Errorf("offset query = %v, want empty", got)
	}
}

func TestToRecord_Flattens(t *testing.T) {
	t.Parallel()

	id := primitive.NewObjectID()
	doc := bson.D{
		{Key: "_id", Value: id},
		{Key: "customer", Value: bson.D{{Key: "name", Value: "ada"}, {Key: "tier", Value: int32(2)}}},
		{Key: "tags", Value: bson.A{"a", "b"}},
		{Key: "lines", Value: bson.A{bson.D{{Key: "sku", Value: "x"}}}},
	}

	r := toRecord(doc)

	wantKeys := []string{"_id", "customer.name", "customer.tier", "tags", "lines.0.sku"}
	if !reflect.DeepEqual(r.Keys(), wantKeys) {
		t.Errorf("keys = %v, want %v", r.Keys(), wantKeys)
	}
	if v, _ := r.Get("_id"); v != id {
		t.Errorf("_id = %v, want %v", v, id)
	}
	if v, _ := r.Get("tags"); !reflect.DeepEqual(v, []any{"a", "b"}) {
		t.Errorf("tags = %#v", v)
	}
}

func TestParseScript(t *testing.T) {
	t.Parallel()

	single, err := parseScript(`{"create": "archive"}`)
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	if len(single) != 1 || single[0][0].Key != "create" {
		t.Errorf("single = %v", single)
	}

	list, err := parseScript(` [{"create": "a"}, {"createIndexes": "a", "indexes": [{"key": {"ts": 1}, "name": "ts"}]}]`)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[1][0].Key != "createIndexes" {
		t.Errorf("list = %v", list)
	}

	if _, err := parseScript(`db.archive.drop()`); err == nil {
		t.Error("expected error for shell syntax")
	}
}

func TestRunScript_InvalidScript(t *testing.T) {
	t.Parallel()

	err := New(nil).RunScript(context.Background(), validSettings(nil), "not json")
	if !errors.Is(err, archive.ErrScriptExecution) {
		t.Errorf("err = %v, want ErrScriptExecution", err)
	}
}

func TestStore_WrongSettingsType(t *testing.T) {
	t.Parallel()

	records := []archive.Record{archive.RecordFromMap(map[string]any{"_id": 1})}
	err := New(nil).Insert(context.Background(), otherSettings{}, records)
	if !errors.Is(err, archive.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestStore_MissingKeyBeforeConnecting(t *testing.T) {
	t.Parallel()

	s := validSettings(func(s *Settings) { s.ConnectionString = "mongodb://127.0.0.1:1" })
	records := []archive.Record{archive.RecordFromMap(map[string]any{"name": "x"})}

	if err := New(nil).Delete(context.Background(), s, records); !errors.Is(err, archive.ErrMissingKey) {
		t.Errorf("Delete err = %v, want ErrMissingKey", err)
	}
}

func TestStore_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	store := New(nil)
	if err := store.Delete(context.Background(), nil, nil); err != nil {
		t.Errorf("Delete = %v", err)
	}
	if err := store.Insert(context.Background(), nil, nil); err != nil {
		t.Errorf("Insert = %v", err)
	}
}

func TestCursor_BadURI(t *testing.T) {
	t.Parallel()

	s := validSettings(func(s *Settings) { s.ConnectionString = "not-a-uri" })
	_, err := New(nil).Cursor(context.Background(), s, 10)
	if !errors.Is(err, archive.ErrConnection) {
		t.Errorf("err = %v, want ErrConnection", err)
	}
}

type otherSettings struct{}

func (otherSettings) KeyField() string { return "_id" }
