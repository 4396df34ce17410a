package gpu

import (
	"fmt"

	"github.com/nicelabs/nice-gpu/internal/device"
	"github.com/nicelabs/nice-gpu/internal/linalg"
	"github.com/nicelabs/nice-gpu/internal/metrics"
	"go.uber.org/zap"
)

// TiledBackend reduces global-memory traffic by staging tiles of the input
// vector into block-shared scratch. Every matrix element is read exactly once
// in a matrix-vector product no matter how it is tiled, so only the vector is
// staged: each block cooperatively loads one tile of x, synchronizes, and
// every thread reads the tile from shared scratch instead of global memory.
type TiledBackend[T linalg.Float] struct {
	dev       *device.Device
	tileWidth int
	log       *zap.Logger
}

// NewTiledBackend creates a tiled backend with the given tile width. The
// width is validated here, before any launch can happen.
func NewTiledBackend[T linalg.Float](dev *device.Device, tileWidth int, log *zap.Logger) (*TiledBackend[T], error) {
	if tileWidth <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTileWidth, tileWidth)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TiledBackend[T]{
		dev:       dev,
		tileWidth: tileWidth,
		log:       log.Named("tiled"),
	}, nil
}

// Name identifies the backend.
func (b *TiledBackend[T]) Name() string { return "tiled" }

// TileWidth returns the configured tile width.
func (b *TiledBackend[T]) TileWidth() int { return b.tileWidth }

// MulVec computes y = A*x, staging tiles of x in shared scratch. Threads with
// out-of-range rows still participate in every barrier; they only skip the
// accumulation and the final write.
func (b *TiledBackend[T]) MulVec(a *linalg.Dense[T], x *linalg.Vector[T]) (*linalg.Vector[T], error) {
	m, k := a.Rows(), a.Cols()
	tw := b.tileWidth

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

	cfg := device.ConfigFor(m, tw)
	numTiles := (k + tw - 1) / tw
	ad, xd, yd := dA.Data(), dX.Data(), dY.Data()

	b.log.Debug("launching tiled kernel",
		zap.Int("rows", m), zap.Int("cols", k),
		zap.Int("tile_width", tw), zap.Int("num_tiles", numTiles),
		zap.Int("grid_dim", cfg.GridDim))

	err = device.LaunchShared(b.dev, cfg, tw, func(tc device.ThreadCtx, shared []T) {
		row := tc.Block*tw + tc.Thread
		var sum T
		for t := 0; t < numTiles; t++ {
			// Cooperative load: one element of the current x tile per
			// thread. Out-of-range slots are zeroed so a partial final
			// tile contributes nothing.
			col := t*tw + tc.Thread
			if col < k {
				shared[tc.Thread] = xd[col]
			} else {
				shared[tc.Thread] = 0
			}
			tc.SyncThreads()

			if row < m {
				base := t * tw
				end := k - base
				if end > tw {
					end = tw
				}
				for j := 0; j < end; j++ {
					sum += ad[(base+j)*m+row] * shared[j]
				}
			}
			// The tile must not be overwritten until every thread has
			// finished reading it.
			tc.SyncThreads()
		}
		if row < m {
			yd[row] = sum
		}
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
