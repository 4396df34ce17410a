package gpu

import (
	"fmt"

	"github.com/nicelabs/nice-gpu/internal/device"
	"github.com/nicelabs/nice-gpu/internal/linalg"
	"github.com/nicelabs/nice-gpu/internal/metrics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"
)

// BlasBackend delegates the product to gonum's optimized GEMV. The operands
// still go through device buffers with the same lifecycle discipline as the
// hand-written kernels, so the backend doubles as a performance and
// correctness baseline.
//
// Layout: our storage is column-major with leading dimension m, gonum is
// row-major. The same bytes read row-major are Aᵀ (k×m, lda = m), so GEMV is
// called with the transpose flag instead of physically transposing.
type BlasBackend[T linalg.Float] struct {
	dev *device.Device
	log *zap.Logger
}

// NewBlasBackend creates a BLAS-delegating backend on the given device.
func NewBlasBackend[T linalg.Float](dev *device.Device, log *zap.Logger) *BlasBackend[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &BlasBackend[T]{dev: dev, log: log.Named("blas")}
}

// Name identifies the backend.
func (b *BlasBackend[T]) Name() string { return "blas" }

// MulVec computes y = A*x via the vendor GEMV routine.
func (b *BlasBackend[T]) MulVec(a *linalg.Dense[T], x *linalg.Vector[T]) (*linalg.Vector[T], error) {
	m, k := a.Rows(), a.Cols()

	dA, err := device.Malloc[T](b.dev, m*k)
	if err != nil {
		return nil, err
	}
	defer dA.Free()
	dX, err := device.Malloc[T](b.dev, k)
	if err != nil {
		return nil, err
	}
	defer dX.Free()
	dY, err := device.Malloc[T](b.dev, m)
	if err != nil {
		return nil, err
	}
	defer dY.Free()

	if err := device.CopyIn(dA, a.Data()); err != nil {
		return nil, err
	}
	if err := device.CopyIn(dX, x.Data()); err != nil {
		return nil, err
	}

	b.log.Debug("invoking vendor gemv",
		zap.Int("rows", m), zap.Int("cols", k))

	switch ad := any(dA.Data()).(type) {
	case []float32:
		xd := any(dX.Data()).([]float32)
		yd := any(dY.Data()).([]float32)
		blas32.Implementation().Sgemv(blas.Trans, k, m, 1, ad, m, xd, 1, 0, yd, 1)
	case []float64:
		xd := any(dX.Data()).([]float64)
		yd := any(dY.Data()).([]float64)
		blas64.Implementation().Dgemv(blas.Trans, k, m, 1, ad, m, xd, 1, 0, yd, 1)
	default:
		return nil, fmt.Errorf("unsupported element type %T", ad)
	}
	metrics.KernelLaunches.WithLabelValues(b.Name()).Inc()

	out := make([]T, m)
	if err := device.CopyOut(out, dY); err != nil {
		return nil, err
	}
	return linalg.NewVector(m, out)
}
