package chunk

import (
	"io"

	apierrors "github.com/devrev/edgecdn/internal/errors"
	pb "github.com/devrev/edgecdn/pkg/proto"
)

// Reader exposes a chunk stream as an io.Reader so it can be written straight to
// storage without buffering the whole file.
type Reader struct {
	src    Source
	name   string
	cur    []byte
	opened bool
	eof    bool
	chunks int
}

// NewReader wraps src.
func NewReader(src Source) *Reader {
	return &Reader{src: src}
}

// Open reads the first chunk. It fails with an EmptyStream transfer error when the
// stream yields no chunks at all, which callers treat as a miss.
func (r *Reader) Open() error {
	if r.opened {
		return nil
	}
	r.opened = true

	c, err := r.src.Recv()
	if err == io.EOF {
		r.eof = true
		return apierrors.EmptyStream()
	}
	if err != nil {
		return apierrors.TransferError("failed to receive first chunk", err)
	}
	r.name = c.GetName()
	r.cur = c.GetBuffer()
	r.chunks = 1
	return nil
}

// Name is the file name carried by the first chunk. Valid after Open.
func (r *Reader) Name() string {
	return r.name
}

// Chunks is the number of chunks consumed so far.
func (r *Reader) Chunks() int {
	return r.chunks
}

// Read implements io.Reader. Later chunk names are ignored.
func (r *Reader) Read(p []byte) (int, error) {
	if !r.opened {
		if err := r.Open(); err != nil {
			return 0, err
		}
	}
	for len(r.cur) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		c, err := r.next()
		if err != nil {
			return 0, err
		}
		r.cur = c.GetBuffer()
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

func (r *Reader) next() (*pb.Chunk, error) {
	c, err := r.src.Recv()
	if err == io.EOF {
		r.eof = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, apierrors.TransferError("chunk stream truncated", err)
	}
	r.chunks++
	return c, nil
}
