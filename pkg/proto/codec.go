package proto

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype the FileServer messages travel under.
// Clients select it with grpc.CallContentSubtype(CodecName); servers resolve it
// from the registry automatically.
const CodecName = "cdnwire"

type wireCodec struct{}

func (wireCodec) Name() string { return CodecName }

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("cdnwire: cannot marshal %T", v)
	}
	return m.MarshalWire(), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("cdnwire: cannot unmarshal into %T", v)
	}
	return m.UnmarshalWire(data)
}

func init() {
	encoding.RegisterCodec(wireCodec{})
}

// Codec returns the FileServer codec. Servers force it so that peers which send
// no content-subtype are understood too.
func Codec() encoding.Codec {
	return wireCodec{}
}
