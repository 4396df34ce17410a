package gpu

import (
	"fmt"
	"math"

	"github.com/nicelabs/nice-gpu/internal/device"
	"github.com/nicelabs/nice-gpu/internal/linalg"
	"github.com/nicelabs/nice-gpu/internal/metrics"
)

// SquaredNorm computes the sum of squared elements of x on the device. Each
// block tree-reduces its slice of the vector in shared scratch; the host sums
// the per-block partials. DefaultBlockDim must stay a power of two for the
// stride halving to cover every slot.
func SquaredNorm[T linalg.Float](dev *device.Device, x *linalg.Vector[T]) (T, error) {
	var zero T
	n := x.Len()
	if n == 0 {
		return zero, fmt.Errorf("%w: vector has length 0", ErrEmptyOperand)
	}

	dX, err := device.Malloc[T](dev, n)
	if err != nil {
		return zero, err
	}
	defer dX.Free()
	if err := device.CopyIn(dX, x.Data()); err != nil {
		return zero, err
	}

	cfg := device.ConfigFor(n, DefaultBlockDim)
	dPartial, err := device.Malloc[T](dev, cfg.GridDim)
	if err != nil {
		return zero, err
	}
	defer dPartial.Free()

	xd, pd := dX.Data(), dPartial.Data()
	err = device.LaunchShared(dev, cfg, cfg.BlockDim, func(tc device.ThreadCtx, shared []T) {
		i := tc.Block*cfg.BlockDim + tc.Thread
		if i < n {
			shared[tc.Thread] = xd[i] * xd[i]
		} else {
			shared[tc.Thread] = 0
		}
		tc.SyncThreads()
		for stride := cfg.BlockDim / 2; stride > 0; stride /= 2 {
			if tc.Thread < stride {
				shared[tc.Thread] += shared[tc.Thread+stride]
			}
			tc.SyncThreads()
		}
		if tc.Thread == 0 {
			pd[tc.Block] = shared[0]
		}
	})
	if err != nil {
		return zero, err
	}
	metrics.KernelLaunches.WithLabelValues("norm").Inc()

	partials := make([]T, cfg.GridDim)
	if err := device.CopyOut(partials, dPartial); err != nil {
		return zero, err
	}
	var sum T
	for _, p := range partials {
		sum += p
	}
	return sum, nil
}

// Norm computes the Euclidean norm of x on the device.
func Norm[T linalg.Float](dev *device.Device, x *linalg.Vector[T]) (T, error) {
	sq, err := SquaredNorm(dev, x)
	if err != nil {
		return 0, err
	}
	return T(math.Sqrt(float64(sq))), nil
}
