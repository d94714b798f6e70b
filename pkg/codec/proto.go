package codec

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Mockable function variables for testing
var (
	protoMarshal   = proto.Marshal
	protoUnmarshal = proto.Unmarshal
)

// ProtoCodec encodes results as a binary google.protobuf.Struct message.
// Protobuf maps are unordered, so key order is not preserved by this codec; clients that
// depend on ordering should ask for JSON.
type ProtoCodec struct{}

// NewProtoCodec creates a new ProtoCodec instance.
func NewProtoCodec() *ProtoCodec {
	return &ProtoCodec{}
}

// ContentType implements Codec.
func (c *ProtoCodec) ContentType() string {
	return "application/x-protobuf"
}

// Encode implements Codec.
func (c *ProtoCodec) Encode(m *Map) ([]byte, error) {
	if m == nil {
		m = NewMap()
	}
	js, err := m.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "proto encode")
	}

	var s structpb.Struct
	if err := protojson.Unmarshal(js, &s); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "proto encode"), ErrUnsupportedValue)
	}

	body, err := protoMarshal(&s)
	if err != nil {
		return nil, errors.Wrap(err, "proto marshal")
	}
	return body, nil
}

// Decode implements Codec.
func (c *ProtoCodec) Decode(data []byte) (*Map, error) {
	var s structpb.Struct
	if err := protoUnmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "proto unmarshal")
	}

	js, err := protojson.Marshal(&s)
	if err != nil {
		return nil, errors.Wrap(err, "proto decode")
	}

	m := NewMap()
	if err := m.UnmarshalJSON(js); err != nil {
		return nil, errors.Wrap(err, "proto decode")
	}
	return m, nil
}
