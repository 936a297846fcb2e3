// Package proto holds the FileServer wire messages and gRPC service bindings.
//
// The messages are encoded with the protobuf wire format described in ops.proto,
// so peers built from the .proto file interoperate with this package.
package proto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every FileServer wire message.
type Message interface {
	MarshalWire() []byte
	UnmarshalWire(b []byte) error
}

// Chunk is one fragment of a file in transfer. Name is set on the first chunk of a stream.
type Chunk struct {
	Buffer []byte
	Name   string
}

// Request asks a node for a stored file.
type Request struct {
	Name string
}

// Reply acknowledges a completed upload.
type Reply struct {
	Length   int64
	Checksum uint32
}

// HeartbeatRequest is the liveness probe payload.
type HeartbeatRequest struct {
	Message string
}

// HeartbeatResponse answers a liveness probe.
type HeartbeatResponse struct {
	Message string
}

func (c *Chunk) GetBuffer() []byte {
	if c == nil {
		return nil
	}
	return c.Buffer
}

func (c *Chunk) GetName() string {
	if c == nil {
		return ""
	}
	return c.Name
}

func (r *Request) GetName() string {
	if r == nil {
		return ""
	}
	return r.Name
}

func (r *Reply) GetLength() int64 {
	if r == nil {
		return 0
	}
	return r.Length
}

func (r *Reply) GetChecksum() uint32 {
	if r == nil {
		return 0
	}
	return r.Checksum
}

func (h *HeartbeatRequest) GetMessage() string {
	if h == nil {
		return ""
	}
	return h.Message
}

func (h *HeartbeatResponse) GetMessage() string {
	if h == nil {
		return ""
	}
	return h.Message
}

// MarshalWire encodes the chunk.
func (c *Chunk) MarshalWire() []byte {
	b := make([]byte, 0, len(c.Buffer)+len(c.Name)+16)
	if len(c.Buffer) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, c.Buffer)
	}
	if c.Name != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, c.Name)
	}
	return b
}

// UnmarshalWire decodes the chunk, copying the payload out of b.
func (c *Chunk) UnmarshalWire(b []byte) error {
	*c = Chunk{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			c.Buffer = append([]byte(nil), v...)
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			c.Name = v
			return n, nil
		}
		return skipField(num, typ, b)
	})
}

// MarshalWire encodes the request.
func (r *Request) MarshalWire() []byte {
	return appendString(nil, 1, r.Name)
}

// UnmarshalWire decodes the request.
func (r *Request) UnmarshalWire(b []byte) error {
	*r = Request{}
	return consumeStringField(b, 1, &r.Name)
}

// MarshalWire encodes the reply.
func (r *Reply) MarshalWire() []byte {
	var b []byte
	if r.Length != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Length))
	}
	if r.Checksum != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Checksum))
	}
	return b
}

// UnmarshalWire decodes the reply.
func (r *Reply) UnmarshalWire(b []byte) error {
	*r = Reply{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.VarintType || (num != 1 && num != 2) {
			return skipField(num, typ, b)
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		if num == 1 {
			r.Length = int64(v)
		} else {
			r.Checksum = uint32(v)
		}
		return n, nil
	})
}

// MarshalWire encodes the heartbeat request.
func (h *HeartbeatRequest) MarshalWire() []byte {
	return appendString(nil, 1, h.Message)
}

// UnmarshalWire decodes the heartbeat request.
func (h *HeartbeatRequest) UnmarshalWire(b []byte) error {
	*h = HeartbeatRequest{}
	return consumeStringField(b, 1, &h.Message)
}

// MarshalWire encodes the heartbeat response.
func (h *HeartbeatResponse) MarshalWire() []byte {
	return appendString(nil, 1, h.Message)
}

// UnmarshalWire decodes the heartbeat response.
func (h *HeartbeatResponse) UnmarshalWire(b []byte) error {
	*h = HeartbeatResponse{}
	return consumeStringField(b, 1, &h.Message)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func consumeStringField(b []byte, want protowire.Number, dst *string) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != want || typ != protowire.BytesType {
			return skipField(num, typ, b)
		}
		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		*dst = v
		return n, nil
	})
}

// consumeFields walks every field in b, handing the value bytes to fn.
func consumeFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		b = b[m:]
	}
	return nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
