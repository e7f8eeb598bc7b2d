package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Record is one row or document, represented as an ordered mapping of field
// name to value. Field names are unique; iteration order is insertion order,
// which adapters set to the backend's column order.
//
// The engine never inspects field values. A Record must not be mutated after
// it has been returned from a Cursor.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord returns an empty record with room for n fields.
func NewRecord(n int) Record {
	return Record{
		keys:   make([]string, 0, n),
		values: make(map[string]any, n),
	}
}

// RecordFromMap builds a record from an unordered map. Fields are ordered by
// name so the result is deterministic.
func RecordFromMap(m map[string]any) Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	r := NewRecord(len(keys))
	for _, k := range keys {
		r.Set(k, m[k])
	}
	return r
}

// Set assigns value to field. A new field is appended at the end; an existing
// field keeps its position.
func (r *Record) Set(field string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[field]; !exists {
		r.keys = append(r.keys, field)
	}
	r.values[field] = value
}

// Get returns the value of field and whether it is present.
func (r Record) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Keys returns the field names in order. The returned slice must not be modified.
func (r Record) Keys() []string {
	return r.keys
}

// Values returns the field values in key order.
func (r Record) Values() []any {
	out := make([]any, len(r.keys))
	for i, k := range r.keys {
		out[i] = r.values[k]
	}
	return out
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.keys)
}

// Map returns a copy of the record as a plain map.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.keys))
	for _, k := range r.keys {
		m[k] = r.values[k]
	}
	return m
}

// Key returns the value of the key field, or ErrMissingKey.
func (r Record) Key(field string) (any, error) {
	v, ok := r.values[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingKey, field)
	}
	return v, nil
}

// MarshalJSON encodes the record as a JSON object preserving field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("archive: marshal field %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving field order. Numbers are
// decoded as json.Number.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("archive: record must be a JSON object")
	}

	*r = NewRecord(8)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("archive: unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("archive: decode field %q: %w", key, err)
		}
		r.Set(key, v)
	}
	_, err = dec.Token()
	return err
}

// Flatten normalizes nested values into dotted keys so that document-store
// records cross the Source/Target boundary as flat rows:
//
//	{"a": {"b": 1}, "c": [{"d": 2}]}  →  {"a.b": 1, "c.0.d": 2}
//
// Slices of scalars are kept as-is.
func Flatten(r Record) Record {
	out := NewRecord(r.Len())
	for _, k := range r.keys {
		flattenInto(&out, k, r.values[k])
	}
	return out
}

func flattenInto(out *Record, prefix string, v any) {
	switch val := v.(type) {
	case Record:
		for _, k := range val.keys {
			flattenInto(out, prefix+"."+k, val.values[k])
		}
	case map[string]any:
		nested := RecordFromMap(val)
		flattenInto(out, prefix, nested)
	case []any:
		if !containsNested(val) {
			out.Set(prefix, val)
			return
		}
		for i, item := range val {
			flattenInto(out, prefix+"."+strconv.Itoa(i), item)
		}
	default:
		out.Set(prefix, v)
	}
}

func containsNested(items []any) bool {
	for _, item := range items {
		switch item.(type) {
		case Record, map[string]any, []any:
			return true
		}
	}
	return false
}

// Unflatten reverses Flatten for targets that store nested documents. A
// node whose keys are exactly 0..n-1 becomes a slice again, so arrays of
// sub-documents keep their shape.
func Unflatten(r Record) map[string]any {
	root := make(map[string]any, r.Len())
	for _, k := range r.keys {
		parts := strings.Split(k, ".")
		node := root
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = r.values[k]
	}
	for k, v := range root {
		root[k] = rebuildSlices(v)
	}
	return root
}

// rebuildSlices turns index-keyed maps built by Unflatten back into slices,
// depth first.
func rebuildSlices(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range m {
		m[k] = rebuildSlices(child)
	}

	items := make([]any, len(m))
	for k, child := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(m) || strconv.Itoa(i) != k {
			return m
		}
		items[i] = child
	}
	if len(items) == 0 {
		return m
	}
	return items
}
