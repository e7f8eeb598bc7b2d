package mongodb

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/flemzord/dbarchiver/internal/archive"
)

// toRecord converts a decoded document into a flat record. Field order is
// preserved and embedded documents become dotted keys.
func toRecord(doc bson.D) archive.Record {
	return archive.Flatten(nested(doc))
}

func nested(doc bson.D) archive.Record {
	r := archive.NewRecord(len(doc))
	for _, e := range doc {
		r.Set(e.Key, plain(e.Value))
	}
	return r
}

// plain maps driver container types onto the types archive.Flatten walks.
func plain(v any) any {
	switch val := v.(type) {
	case bson.D:
		return nested(val)
	case bson.M:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = plain(item)
		}
		return m
	case bson.A:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = plain(item)
		}
		return items
	default:
		return v
	}
}

// parseScript reads a pre-script: one command document or a JSON array of
// them, run in order.
func parseScript(script string) ([]bson.D, error) {
	trimmed := strings.TrimSpace(script)
	if !strings.HasPrefix(trimmed, "[") {
		doc, err := parseDocument(trimmed)
		if err != nil {
			return nil, err
		}
		return []bson.D{doc}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("parse command list: %w", err)
	}
	cmds := make([]bson.D, 0, len(raw))
	for i, r := range raw {
		doc, err := parseDocument(string(r))
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		cmds = append(cmds, doc)
	}
	return cmds, nil
}
