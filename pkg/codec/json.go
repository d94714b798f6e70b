package codec

import (
	"github.com/cockroachdb/errors"
)

// JSONCodec encodes results as JSON, keeping the key order of the Map.
type JSONCodec struct{}

// NewJSONCodec creates a new JSONCodec instance.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// ContentType implements Codec.
func (c *JSONCodec) ContentType() string {
	return "application/json"
}

// Encode implements Codec.
func (c *JSONCodec) Encode(m *Map) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	body, err := m.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "json encode")
	}
	return body, nil
}

// Decode implements Codec.
func (c *JSONCodec) Decode(data []byte) (*Map, error) {
	m := NewMap()
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, errors.Wrap(err, "json decode")
	}
	return m, nil
}
