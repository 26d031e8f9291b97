package consensus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
)

// Entry is one backend's value inside an Ordered map.
type Entry[T any] struct {
	Backend string
	Value   T
}

// Ordered maps backend identifiers to values while keeping insertion order.
// Reference selection and tie-breaks depend on that order, so it is also
// preserved through JSON encoding.
type Ordered[T any] struct {
	entries []Entry[T]
}

// Responses maps each backend to its raw response text or error marker.
type Responses = Ordered[string]

// Answers maps each backend to an extracted answer, absent when none was found.
type Answers = Ordered[Optional[string]]

// OrderedOf builds an Ordered map from entries. Later duplicates replace
// earlier values in place.
func OrderedOf[T any](entries ...Entry[T]) Ordered[T] {
	var o Ordered[T]
	for _, e := range entries {
		o.Set(e.Backend, e.Value)
	}
	return o
}

// Set stores v for backend, appending backend if it is new.
func (o *Ordered[T]) Set(backend string, v T) {
	for i := range o.entries {
		if o.entries[i].Backend == backend {
			o.entries[i].Value = v
			return
		}
	}
	o.entries = append(o.entries, Entry[T]{Backend: backend, Value: v})
}

// Get returns the value stored for backend.
func (o Ordered[T]) Get(backend string) (T, bool) {
	for _, e := range o.entries {
		if e.Backend == backend {
			return e.Value, true
		}
	}
	var zero T
	return zero, false
}

// Len returns the number of backends.
func (o Ordered[T]) Len() int {
	return len(o.entries)
}

// Backends returns backend identifiers in order.
func (o Ordered[T]) Backends() []string {
	out := make([]string, len(o.entries))
	for i, e := range o.entries {
		out[i] = e.Backend
	}
	return out
}

// Entries returns a copy of the entries in order.
func (o Ordered[T]) Entries() []Entry[T] {
	out := make([]Entry[T], len(o.entries))
	copy(out, o.entries)
	return out
}

// All iterates backends and values in order.
func (o Ordered[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for _, e := range o.entries {
			if !yield(e.Backend, e.Value) {
				return
			}
		}
	}
}

// Filter returns the entries whose backend satisfies keep, in order.
func (o Ordered[T]) Filter(keep func(backend string) bool) Ordered[T] {
	var out Ordered[T]
	for _, e := range o.entries {
		if keep(e.Backend) {
			out.entries = append(out.entries, e)
		}
	}
	return out
}

// MarshalJSON encodes the map as a JSON object with keys in order.
func (o Ordered[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range o.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Backend)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", e.Backend, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the document's key order.
func (o *Ordered[T]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	var out Ordered[T]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var v T
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("decoding %s: %w", key, err)
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = out
	return nil
}
