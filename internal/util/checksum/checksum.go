// Package checksum computes CRC32 (IEEE) checksums used to verify that a replica
// stored the same bytes as the origin.
package checksum

import (
	"hash"
	"hash/crc32"
	"io"
	"os"
)

var crc32Table = crc32.MakeTable(crc32.IEEE)

// New returns a running checksum for streaming writes.
func New() hash.Hash32 {
	return crc32.New(crc32Table)
}

// Compute returns the checksum of data.
func Compute(data []byte) uint32 {
	return crc32.Checksum(data, crc32Table)
}

// Validate reports whether data matches expected.
func Validate(data []byte, expected uint32) bool {
	return Compute(data) == expected
}

// Reader returns the checksum and length of everything read from r.
func Reader(r io.Reader) (uint32, int64, error) {
	h := crc32.New(crc32Table)
	n, err := io.Copy(h, r)
	if err != nil {
		return 0, n, err
	}
	return h.Sum32(), n, nil
}

// File returns the checksum and size of the file at path.
func File(path string) (uint32, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	return Reader(f)
}
