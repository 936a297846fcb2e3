// Package chunk splits files into bounded-size chunks for streaming transfer and
// joins chunk streams back into files.
package chunk

import (
	"bytes"
	"fmt"
	"io"

	apierrors "github.com/devrev/edgecdn/internal/errors"
	pb "github.com/devrev/edgecdn/pkg/proto"
)

// DefaultSize is the chunk payload size used on every transfer endpoint.
const DefaultSize = 1024 * 1024

// Source yields chunks in arrival order and returns io.EOF after the last one.
// gRPC receive streams satisfy it.
type Source interface {
	Recv() (*pb.Chunk, error)
}

// Sink accepts chunks in order. gRPC send streams satisfy it.
type Sink interface {
	Send(*pb.Chunk) error
}

// Splitter lazily cuts a reader into chunks. The first chunk carries the name.
type Splitter struct {
	r       io.Reader
	name    string
	size    int
	buf     []byte
	emitted int
	done    bool
}

// NewSplitter returns a splitter over r. A non-positive size selects DefaultSize.
func NewSplitter(r io.Reader, name string, size int) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	return &Splitter{
		r:    r,
		name: name,
		size: size,
		buf:  make([]byte, size),
	}
}

// Next returns the next chunk, or io.EOF once every byte has been emitted.
// An empty source still yields a single empty chunk so the name reaches the peer.
func (s *Splitter) Next() (*pb.Chunk, error) {
	if s.done {
		return nil, io.EOF
	}

	n, err := io.ReadFull(s.r, s.buf)
	switch {
	case err == io.EOF:
		s.done = true
		if s.emitted > 0 {
			return nil, io.EOF
		}
	case err == io.ErrUnexpectedEOF:
		s.done = true
	case err != nil:
		return nil, apierrors.IOError("failed to read chunk source", err)
	}

	c := &pb.Chunk{Buffer: append([]byte(nil), s.buf[:n]...)}
	if s.emitted == 0 {
		c.Name = s.name
	}
	s.emitted++
	return c, nil
}

// Split cuts data into chunks of at most size bytes.
func Split(data []byte, name string, size int) []*pb.Chunk {
	sp := NewSplitter(bytes.NewReader(data), name, size)
	var chunks []*pb.Chunk
	for {
		c, err := sp.Next()
		if err != nil {
			// bytes.Reader only ever reports io.EOF
			return chunks
		}
		chunks = append(chunks, c)
	}
}

// Send pushes every chunk from sp into sink and returns the payload bytes sent.
func Send(sink Sink, sp *Splitter) (int64, error) {
	var total int64
	for {
		c, err := sp.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if err := sink.Send(c); err != nil {
			return total, apierrors.TransferError(fmt.Sprintf("failed to send chunk %d", sp.emitted-1), err)
		}
		total += int64(len(c.Buffer))
	}
}

// Join consumes src in arrival order and returns the name from the first chunk and
// the concatenated payloads.
func Join(src Source) (string, []byte, error) {
	r := NewReader(src)
	if err := r.Open(); err != nil {
		return "", nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, err
	}
	return r.Name(), data, nil
}

// SliceSource replays a fixed list of chunks.
type SliceSource struct {
	chunks []*pb.Chunk
	pos    int
}

// NewSliceSource returns a Source over chunks.
func NewSliceSource(chunks ...*pb.Chunk) *SliceSource {
	return &SliceSource{chunks: chunks}
}

// Recv returns the next chunk or io.EOF.
func (s *SliceSource) Recv() (*pb.Chunk, error) {
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}
