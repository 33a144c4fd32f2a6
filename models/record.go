package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is the unit of transfer: an ordered mapping of field name to value.
// Field order is the insertion order. A Record is not safe for concurrent mutation.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord creates an empty record
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// RecordOf builds a record from alternating name/value pairs
func RecordOf(kv ...any) *Record {
	r := NewRecord()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return r
}

// RecordFromMap builds a record from a map. Keys are sorted to give a stable order.
func RecordFromMap(m map[string]any) *Record {
	r := NewRecord()
	for _, k := range sortedKeys(m) {
		r.Set(k, m[k])
	}
	return r
}

// Set adds or replaces a field. A new field goes to the end; a replaced one keeps its position.
func (r *Record) Set(name string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[name]; !exists {
		r.keys = append(r.keys, name)
	}
	r.values[name] = NormalizeValue(value)
}

// Get returns the value of a field
func (r *Record) Get(name string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[name]
	return v, ok
}

// GetString returns a field rendered as a string, or "" when absent
func (r *Record) GetString(name string) string {
	v, ok := r.Get(name)
	if !ok || v == nil {
		return ""
	}
	return ValueString(v)
}

// Delete removes a field
func (r *Record) Delete(name string) {
	if _, exists := r.values[name]; !exists {
		return
	}
	delete(r.values, name)
	for i, k := range r.keys {
		if k == name {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of fields
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Keys returns the field names in order
func (r *Record) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Range calls fn for each field in order until fn returns false
func (r *Record) Range(fn func(name string, value any) bool) {
	for _, k := range r.keys {
		if !fn(k, r.values[k]) {
			return
		}
	}
}

// Map returns an unordered copy of the fields
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.keys))
	for _, k := range r.keys {
		m[k] = r.values[k]
	}
	return m
}

// Clone returns a shallow copy of the record
func (r *Record) Clone() *Record {
	c := &Record{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]any, len(r.values)),
	}
	copy(c.keys, r.keys)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// String renders the record as JSON, used in logs and error context
func (r *Record) String() string {
	if r == nil {
		return "<nil>"
	}
	b, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%v", r.Map())
	}
	return string(b)
}

// MarshalJSON writes the fields as a JSON object preserving field order
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping the order of its top-level fields.
// Integral numbers become int64, other numbers float64.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %s", strings.TrimSpace(string(data)))
	}

	r.keys = nil
	r.values = make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		r.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// Chunk is a bounded, ordered batch of records committed as one unit
type Chunk []*Record
