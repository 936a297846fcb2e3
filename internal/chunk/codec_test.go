package chunk

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	apierrors "github.com/devrev/edgecdn/internal/errors"
	pb "github.com/devrev/edgecdn/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

func TestSplitJoinRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		chunkSize int
	}{
		{"empty", 0, 4},
		{"smaller than chunk", 3, 4},
		{"exact multiple", 16, 4},
		{"ragged tail", 17, 4},
		{"single byte chunks", 9, 1},
		{"default chunk size", 3*DefaultSize + 11, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := randomBytes(tt.size)

			name, got, err := Join(NewSliceSource(Split(data, "file.bin", tt.chunkSize)...))
			require.NoError(t, err)
			assert.Equal(t, "file.bin", name)
			assert.True(t, bytes.Equal(data, got), "payload mismatch")
		})
	}
}

func TestSplitChunkBounds(t *testing.T) {
	chunks := Split(randomBytes(10), "a.txt", 4)

	require.Len(t, chunks, 3)
	assert.Equal(t, "a.txt", chunks[0].Name)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c.Buffer), 4)
		if i > 0 {
			assert.Empty(t, c.Name, "only the first chunk carries the name")
		}
	}
	assert.Len(t, chunks[2].Buffer, 2)
}

func TestSplitEmptyFileEmitsNamedChunk(t *testing.T) {
	chunks := Split(nil, "empty.txt", 8)

	require.Len(t, chunks, 1)
	assert.Equal(t, "empty.txt", chunks[0].Name)
	assert.Empty(t, chunks[0].Buffer)
}

func TestSplitterIsLazy(t *testing.T) {
	src := &countingReader{r: bytes.NewReader(randomBytes(100))}
	sp := NewSplitter(src, "lazy", 10)

	assert.Zero(t, src.reads)
	_, err := sp.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, src.reads)
}

func TestJoinEmptyStream(t *testing.T) {
	_, _, err := Join(NewSliceSource())

	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.ErrCodeTransfer))
}

func TestJoinPreservesOrderAndFirstName(t *testing.T) {
	src := NewSliceSource(
		&pb.Chunk{Buffer: []byte("ab"), Name: "first"},
		&pb.Chunk{Buffer: []byte("cd"), Name: "ignored"},
		&pb.Chunk{Buffer: nil},
		&pb.Chunk{Buffer: []byte("e")},
	)

	name, data, err := Join(src)
	require.NoError(t, err)
	assert.Equal(t, "first", name)
	assert.Equal(t, "abcde", string(data))
}

func TestJoinTruncatedStream(t *testing.T) {
	boom := errors.New("connection reset")
	src := &failingSource{chunks: []*pb.Chunk{{Buffer: []byte("ok"), Name: "x"}}, err: boom}

	_, _, err := Join(src)
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.ErrCodeTransfer))
	assert.ErrorIs(t, err, boom)
}

type recordingSink struct {
	chunks []*pb.Chunk
}

func (s *recordingSink) Send(c *pb.Chunk) error {
	s.chunks = append(s.chunks, c)
	return nil
}

func TestSend(t *testing.T) {
	data := randomBytes(25)
	sink := &recordingSink{}

	n, err := Send(sink, NewSplitter(bytes.NewReader(data), "f", 10))
	require.NoError(t, err)
	assert.Equal(t, int64(25), n)
	require.Len(t, sink.chunks, 3)

	_, got, err := Join(NewSliceSource(sink.chunks...))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

type countingReader struct {
	r     io.Reader
	reads int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.r.Read(p)
}

type failingSource struct {
	chunks []*pb.Chunk
	err    error
}

func (f *failingSource) Recv() (*pb.Chunk, error) {
	if len(f.chunks) == 0 {
		return nil, f.err
	}
	c := f.chunks[0]
	f.chunks = f.chunks[1:]
	return c, nil
}

func TestEmptyStreamIsRecognisable(t *testing.T) {
	r := NewReader(NewSliceSource())
	err := r.Open()
	assert.True(t, apierrors.IsEmptyStream(err))

	_, _, err = Join(NewSliceSource(&pb.Chunk{Name: "x"}))
	assert.False(t, apierrors.IsEmptyStream(err))
}
