package gpu

import (
	"github.com/nicelabs/nice-gpu/internal/device"
	"github.com/nicelabs/nice-gpu/internal/linalg"
	"github.com/nicelabs/nice-gpu/internal/metrics"
	"go.uber.org/zap"
)

// NaiveBackend maps one thread to one output row. Each thread streams the
// full reduction dimension from global memory, so a launch performs m*k
// global reads with no reuse between threads. It is the correctness baseline
// the other backends are measured against.
type NaiveBackend[T linalg.Float] struct {
	dev *device.Device
	log *zap.Logger
}

// NewNaiveBackend creates a naive backend on the given device.
func NewNaiveBackend[T linalg.Float](dev *device.Device, log *zap.Logger) *NaiveBackend[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &NaiveBackend[T]{dev: dev, log: log.Named("naive")}
}

// Name identifies the backend.
func (b *NaiveBackend[T]) Name() string { return "naive" }

// MulVec computes y = A*x with one thread per output row.
func (b *NaiveBackend[T]) MulVec(a *linalg.Dense[T], x *linalg.Vector[T]) (*linalg.Vector[T], error) {
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

	cfg := device.ConfigFor(m, DefaultBlockDim)
	ad, xd, yd := dA.Data(), dX.Data(), dY.Data()

	b.log.Debug("launching naive kernel",
		zap.Int("rows", m), zap.Int("cols", k),
		zap.Int("grid_dim", cfg.GridDim), zap.Int("block_dim", cfg.BlockDim))

	err = b.dev.Launch(cfg, func(tc device.ThreadCtx) {
		row := tc.Block*cfg.BlockDim + tc.Thread
		if row >= m {
			return
		}
		var sum T
		for col := 0; col < k; col++ {
			sum += ad[col*m+row] * xd[col]
		}
		yd[row] = sum
	})
	if err != nil {
		return nil, err
	}
	metrics.KernelLaunches.WithLabelValues(b.Name()).Inc()

	out := make([]T, m)
	if err := device.CopyOut(out, dY); err != nil {
		return nil, err
	}
	return linalg.NewVector(m, out)
}
