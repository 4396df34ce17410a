package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMalloc_Accounting(t *testing.T) {
	dev := New(zap.NewNop())

	buf, err := Malloc[float32](dev, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, buf.Len())
	assert.Equal(t, 1, dev.LiveAllocations())
	assert.Equal(t, int64(400), dev.LiveBytes())

	buf64, err := Malloc[float64](dev, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, dev.LiveAllocations())
	assert.Equal(t, int64(800), dev.LiveBytes())

	require.NoError(t, buf.Free())
	require.NoError(t, buf64.Free())
	assert.Equal(t, 0, dev.LiveAllocations())
	assert.Equal(t, int64(0), dev.LiveBytes())
	assert.Equal(t, dev.TotalAllocs(), dev.TotalFrees())
}

func TestMalloc_OutOfDeviceMemory(t *testing.T) {
	dev := New(zap.NewNop(), WithCapacity(1024))

	buf, err := Malloc[float32](dev, 200) // 800 bytes
	require.NoError(t, err)
	defer buf.Free()

	_, err = Malloc[float32](dev, 100) // 400 more would exceed 1024
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfDeviceMemory)

	// The failed allocation must not change accounting.
	assert.Equal(t, 1, dev.LiveAllocations())
	assert.Equal(t, int64(800), dev.LiveBytes())
}

func TestFree_Double(t *testing.T) {
	dev := New(zap.NewNop())
	buf, err := Malloc[float64](dev, 10)
	require.NoError(t, err)

	require.NoError(t, buf.Free())
	err = buf.Free()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransferFailure)

	// Accounting stays consistent after the misuse.
	assert.Equal(t, 0, dev.LiveAllocations())
	assert.Equal(t, uint64(1), dev.TotalFrees())
}

func TestCopy_RoundTrip(t *testing.T) {
	dev := New(zap.NewNop())
	buf, err := Malloc[float32](dev, 4)
	require.NoError(t, err)
	defer buf.Free()

	src := []float32{1, 2, 3, 4}
	require.NoError(t, CopyIn(buf, src))

	dst := make([]float32, 4)
	require.NoError(t, CopyOut(dst, buf))
	assert.Equal(t, src, dst)

	// The device copy is independent of the host slice.
	src[0] = 99
	require.NoError(t, CopyOut(dst, buf))
	assert.Equal(t, float32(1), dst[0])
}

func TestCopy_SizeMismatch(t *testing.T) {
	dev := New(zap.NewNop())
	buf, err := Malloc[float32](dev, 4)
	require.NoError(t, err)
	defer buf.Free()

	err = CopyIn(buf, make([]float32, 3))
	assert.ErrorIs(t, err, ErrTransferFailure)

	err = CopyOut(make([]float32, 5), buf)
	assert.ErrorIs(t, err, ErrTransferFailure)
}

func TestCopy_FreedBuffer(t *testing.T) {
	dev := New(zap.NewNop())
	buf, err := Malloc[float32](dev, 4)
	require.NoError(t, err)
	require.NoError(t, buf.Free())

	err = CopyIn(buf, make([]float32, 4))
	assert.ErrorIs(t, err, ErrTransferFailure)

	err = CopyOut(make([]float32, 4), buf)
	assert.ErrorIs(t, err, ErrTransferFailure)
}
