package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Pair is one entry of an OrderedMap.
type Pair[V any] struct {
	Key   string
	Value V
}

// OrderedMap is a string-keyed map that remembers insertion order. It
// encodes to a JSON object and a BSON document with keys in that order,
// which the bot runtime relies on.
type OrderedMap[V any] struct {
	pairs []Pair[V]
	index map[string]int
}

// NewOrderedMap returns an empty map with room for n entries.
func NewOrderedMap[V any](n int) OrderedMap[V] {
	return OrderedMap[V]{
		pairs: make([]Pair[V], 0, n),
		index: make(map[string]int, n),
	}
}

// Set stores v under key. Setting an existing key replaces the value and
// keeps the key at its original position.
func (m *OrderedMap[V]) Set(key string, v V) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[key]; ok {
		m.pairs[i].Value = v
		return
	}
	m.index[key] = len(m.pairs)
	m.pairs = append(m.pairs, Pair[V]{Key: key, Value: v})
}

// Get returns the value stored under key.
func (m OrderedMap[V]) Get(key string) (V, bool) {
	i, ok := m.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return m.pairs[i].Value, true
}

func (m OrderedMap[V]) Len() int { return len(m.pairs) }

// Keys returns the keys in insertion order.
func (m OrderedMap[V]) Keys() []string {
	keys := make([]string, len(m.pairs))
	for i, p := range m.pairs {
		keys[i] = p.Key
	}
	return keys
}

// Pairs returns a copy of the entries in insertion order.
func (m OrderedMap[V]) Pairs() []Pair[V] {
	out := make([]Pair[V], len(m.pairs))
	copy(out, m.pairs)
	return out
}

func (m OrderedMap[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range m.pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *OrderedMap[V]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = OrderedMap[V]{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("ordered map: expected object, got %v", tok)
	}
	out := NewOrderedMap[V](0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("ordered map: expected key, got %v", tok)
		}
		var v V
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("ordered map: value for %q: %w", key, err)
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

func (m OrderedMap[V]) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d := make(bson.D, 0, len(m.pairs))
	for _, p := range m.pairs {
		d = append(d, bson.E{Key: p.Key, Value: p.Value})
	}
	return bson.MarshalValue(d)
}

func (m *OrderedMap[V]) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bsontype.Null || t == bsontype.Undefined {
		*m = OrderedMap[V]{}
		return nil
	}
	if t != bsontype.EmbeddedDocument {
		return fmt.Errorf("ordered map: cannot decode bson %s", t)
	}
	elems, err := bson.Raw(data).Elements()
	if err != nil {
		return err
	}
	out := NewOrderedMap[V](len(elems))
	for _, e := range elems {
		var v V
		if err := e.Value().Unmarshal(&v); err != nil {
			return fmt.Errorf("ordered map: value for %q: %w", e.Key(), err)
		}
		out.Set(e.Key(), v)
	}
	*m = out
	return nil
}
