package gpu

import (
	"math/rand"
	"testing"

	"github.com/nicelabs/nice-gpu/internal/device"
	"github.com/nicelabs/nice-gpu/internal/linalg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

func TestBlasBackend_KnownValues(t *testing.T) {
	dev := device.New(zap.NewNop())
	backend := NewBlasBackend[float32](dev, zap.NewNop())

	a, err := linalg.NewDense(2, 3, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	x, err := linalg.NewVector(3, []float32{1, 2, 3})
	require.NoError(t, err)

	y, err := backend.MulVec(a, x)
	require.NoError(t, err)
	assert.InDelta(t, float32(22), y.At(0), 1e-5)
	assert.InDelta(t, float32(28), y.At(1), 1e-5)
	assert.Equal(t, 0, dev.LiveAllocations())
}

func TestBlasBackend_MatchesNaive(t *testing.T) {
	dev := device.New(zap.NewNop())
	blasBackend := NewBlasBackend[float32](dev, zap.NewNop())
	naive := NewNaiveBackend[float32](dev, zap.NewNop())

	rng := rand.New(rand.NewSource(5))
	a := linalg.RandomDense[float32](rng, 500, 1000)
	x := linalg.RandomVector[float32](rng, 1000)

	got, err := blasBackend.MulVec(a, x)
	require.NoError(t, err)
	want, err := naive.MulVec(a, x)
	require.NoError(t, err)

	// GEMV may reorder the reduction, so results are comparable within a
	// tolerance, not bit-identical.
	for i := 0; i < got.Len(); i++ {
		assert.InDelta(t, want.At(i), got.At(i), 1e-3, "differ at index %d", i)
	}
}

func TestBlasBackend_Float64AgainstGonumDense(t *testing.T) {
	dev := device.New(zap.NewNop())
	backend := NewBlasBackend[float64](dev, zap.NewNop())

	rng := rand.New(rand.NewSource(6))
	const m, k = 40, 23
	a := linalg.RandomDense[float64](rng, m, k)
	x := linalg.RandomVector[float64](rng, k)

	got, err := backend.MulVec(a, x)
	require.NoError(t, err)

	// Independent reference through gonum's dense types (row-major).
	rowMajor := make([]float64, m*k)
	for i := 0; i < m; i++ {
		for j := 0; j < k; j++ {
			rowMajor[i*k+j] = a.At(i, j)
		}
	}
	var want mat.VecDense
	want.MulVec(mat.NewDense(m, k, rowMajor), mat.NewVecDense(k, x.Data()))

	for i := 0; i < m; i++ {
		assert.InDelta(t, want.AtVec(i), got.At(i), 1e-10, "differ at index %d", i)
	}
	assert.Equal(t, 0, dev.LiveAllocations())
}

func TestBlasBackend_TallMatrix(t *testing.T) {
	// Leading-dimension handling: tall and skinny exercises lda=m != k.
	dev := device.New(zap.NewNop())
	backend := NewBlasBackend[float64](dev, zap.NewNop())

	rng := rand.New(rand.NewSource(8))
	a := linalg.RandomDense[float64](rng, 997, 3)
	x := linalg.RandomVector[float64](rng, 3)

	got, err := backend.MulVec(a, x)
	require.NoError(t, err)
	want, err := linalg.MulVec(a, x)
	require.NoError(t, err)
	for i := 0; i < got.Len(); i++ {
		assert.InDelta(t, want.At(i), got.At(i), 1e-12, "differ at index %d", i)
	}
}

func TestBlasBackend_FreesBuffersOnFailure(t *testing.T) {
	dev := device.New(zap.NewNop(), device.WithCapacity(128))
	backend := NewBlasBackend[float32](dev, zap.NewNop())

	rng := rand.New(rand.NewSource(4))
	a := linalg.RandomDense[float32](rng, 32, 32)
	x := linalg.RandomVector[float32](rng, 32)

	_, err := backend.MulVec(a, x)
	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrOutOfDeviceMemory)
	assert.Equal(t, 0, dev.LiveAllocations())
}
