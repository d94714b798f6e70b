// Package codec provides encoding and decoding functionality for different data formats.
package codec

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/iancoleman/orderedmap"
)

// ErrUnsupportedValue marks errors caused by a value that cannot be represented in the
// target wire format (channels, functions, NaN floats and the like).
var ErrUnsupportedValue = errors.New("codec: unsupported value")

// Map is an ordered string-keyed mapping. Keys keep the order in which they were first
// set, and that order survives encoding and decoding.
//
// Values may be any JSON-encodable Go value, including nested Map, *Map and []any.
// A Map is not safe for concurrent use.
type Map struct {
	om *orderedmap.OrderedMap
}

// NewMap creates a Map from alternating key/value pairs. It panics if a key is not a string
// or if the number of arguments is odd, since both are programming errors.
func NewMap(kv ...any) *Map {
	if len(kv)%2 != 0 {
		panic("codec: NewMap called with an odd number of arguments")
	}

	m := &Map{om: orderedmap.New()}
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic("codec: NewMap keys must be strings")
		}
		m.Set(key, kv[i+1])
	}
	return m
}

// Set stores value under key. A new key is appended; an existing key keeps its position.
func (m *Map) Set(key string, value any) *Map {
	if m.om == nil {
		m.om = orderedmap.New()
	}
	m.om.Set(key, value)
	return m
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	if m == nil || m.om == nil {
		return nil, false
	}
	return m.om.Get(key)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil || m.om == nil {
		return nil
	}
	return append([]string(nil), m.om.Keys()...)
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil || m.om == nil {
		return 0
	}
	return len(m.om.Keys())
}

// MarshalJSON implements json.Marshaler and writes the keys in insertion order.
// It has a value receiver so a Map nested by value encodes like a *Map.
func (m Map) MarshalJSON() ([]byte, error) {
	if m.om == nil {
		return []byte("{}"), nil
	}

	raw, err := m.om.MarshalJSON()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "encode map"), ErrUnsupportedValue)
	}

	// the encoder behind orderedmap ends every key and value with a newline
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, errors.Wrap(err, "compact map")
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. The input must be exactly one JSON object.
// Nested objects decode into *Map, arrays into []any and numbers into json.Number so
// no precision is lost.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var plain map[string]any
	if err := dec.Decode(&plain); err != nil {
		return errors.Wrap(err, "decode object")
	}
	if plain == nil {
		return errors.New("codec: expected a JSON object, got null")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("codec: unexpected data after the JSON object")
	}

	ordered := orderedmap.New()
	if err := ordered.UnmarshalJSON(data); err != nil {
		return errors.Wrap(err, "decode key order")
	}

	*m = *fromOrdered(*ordered, plain)
	return nil
}

// fromOrdered rebuilds an orderedmap tree as *Map values. orderedmap supplies the key
// order; the leaves come from plain, which was decoded with json.Number.
func fromOrdered(ordered orderedmap.OrderedMap, plain map[string]any) *Map {
	m := NewMap()
	for _, key := range ordered.Keys() {
		v, _ := ordered.Get(key)
		m.Set(key, mergeValue(v, plain[key]))
	}
	return m
}

func mergeValue(ordered, plain any) any {
	switch o := ordered.(type) {
	case orderedmap.OrderedMap:
		p, _ := plain.(map[string]any)
		return fromOrdered(o, p)
	case []any:
		p, _ := plain.([]any)
		out := make([]any, len(o))
		for i := range o {
			var pv any
			if i < len(p) {
				pv = p[i]
			}
			out[i] = mergeValue(o[i], pv)
		}
		return out
	default:
		return plain
	}
}
