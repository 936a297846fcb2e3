package checksum

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIsDeterministic(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"simple", []byte("hello world")},
		{"binary", []byte{0x00, 0x01, 0x02, 0x03, 0xFF}},
		{"large", make([]byte, 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Compute(tt.data), Compute(tt.data))
			assert.True(t, Validate(tt.data, Compute(tt.data)))
		})
	}
}

func TestValidateDetectsCorruption(t *testing.T) {
	data := []byte("test data for checksum validation")
	sum := Compute(data)

	assert.False(t, Validate(data, sum+1))

	corrupted := append([]byte{}, data...)
	corrupted[0] ^= 0xFF
	assert.False(t, Validate(corrupted, sum))
}

func TestReaderAndFileAgreeWithCompute(t *testing.T) {
	data := bytes.Repeat([]byte("chunk"), 4096)

	sum, n, err := Reader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Compute(data), sum)
	assert.Equal(t, int64(len(data)), n)

	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, data, 0644))

	sum, n, err = File(path)
	require.NoError(t, err)
	assert.Equal(t, Compute(data), sum)
	assert.Equal(t, int64(len(data)), n)
}

func TestFileMissing(t *testing.T) {
	_, _, err := File(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
