package diskmanager

import (
	"errors"
	"testing"

	apierrors "github.com/devrev/edgecdn/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T, usage float64, available uint64, err error) *DiskManager {
	t.Helper()
	dm, mkErr := NewDiskManager(DefaultConfig(t.TempDir()), zap.NewNop())
	require.NoError(t, mkErr)
	dm.statfs = func(string) (float64, uint64, error) {
		return usage, available, err
	}
	return dm
}

func TestCheckBeforeWrite(t *testing.T) {
	tests := []struct {
		name      string
		usage     float64
		available uint64
		request   uint64
		wantErr   bool
	}{
		{"plenty of space", 40, 1 << 30, 1 << 20, false},
		{"circuit breaker", 96, 1 << 20, 0, true},
		{"throttled small write", 92, 1 << 30, 1 << 10, false},
		{"throttled large write", 92, 1 << 30, 1 << 29, true},
		{"does not fit", 50, 100, 200, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dm := newTestManager(t, tt.usage, tt.available, nil)
			err := dm.CheckBeforeWrite(tt.request)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apierrors.Is(err, apierrors.ErrCodeDiskFull))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckBeforeWriteIgnoresStatFailure(t *testing.T) {
	dm := newTestManager(t, 0, 0, errors.New("statfs unsupported"))
	assert.NoError(t, dm.CheckBeforeWrite(1<<20))
}

func TestUsageOnRealDirectory(t *testing.T) {
	dm, err := NewDiskManager(DefaultConfig(t.TempDir()), zap.NewNop())
	require.NoError(t, err)

	usage, _, err := dm.Usage()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, usage, 0.0)
	assert.LessOrEqual(t, usage, 100.0)
}
