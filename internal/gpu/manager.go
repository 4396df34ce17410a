package gpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/nicelabs/nice-gpu/internal/config"
	"github.com/nicelabs/nice-gpu/internal/device"
	"github.com/nicelabs/nice-gpu/internal/linalg"
	"github.com/nicelabs/nice-gpu/internal/metrics"
	"go.uber.org/zap"
)

// Manager validates operands, dispatches to the selected backend and surfaces
// errors. Validation happens before any device interaction: an invalid call
// never allocates device memory.
type Manager[T linalg.Float] struct {
	backend Backend[T]
	mu      sync.RWMutex
	log     *zap.Logger
}

// NewManager creates a manager around an already-constructed backend.
func NewManager[T linalg.Float](backend Backend[T], log *zap.Logger) (*Manager[T], error) {
	if backend == nil {
		return nil, fmt.Errorf("no backend provided")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager[T]{backend: backend, log: log.Named("gpu")}, nil
}

// NewManagerFromConfig selects and constructs the backend named in the
// configuration.
func NewManagerFromConfig[T linalg.Float](cfg *config.Config, dev *device.Device, log *zap.Logger) (*Manager[T], error) {
	var backend Backend[T]
	switch cfg.Compute.Backend {
	case "naive":
		backend = NewNaiveBackend[T](dev, log)
	case "tiled":
		tiled, err := NewTiledBackend[T](dev, cfg.Compute.TileWidth, log)
		if err != nil {
			return nil, err
		}
		backend = tiled
	case "blas":
		backend = NewBlasBackend[T](dev, log)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Compute.Backend)
	}
	return NewManager(backend, log)
}

// Backend returns the current backend.
func (mgr *Manager[T]) Backend() Backend[T] {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return mgr.backend
}

// BackendName returns the name of the current backend.
func (mgr *Manager[T]) BackendName() string {
	return mgr.Backend().Name()
}

// MulVec computes y = A*x. Preconditions are checked in order before any
// device interaction: matrix columns must equal vector length, and neither
// operand may be empty. A violation yields a specific diagnostic and no
// partial result; there is no retry and no fallback to another backend.
// The returned vector is freshly allocated and never aliases the inputs.
func (mgr *Manager[T]) MulVec(a *linalg.Dense[T], x *linalg.Vector[T]) (*linalg.Vector[T], error) {
	if a.Cols() != x.Len() {
		metrics.MultiplyErrors.WithLabelValues("shape_mismatch").Inc()
		return nil, fmt.Errorf("%w: matrix is %dx%d, vector has length %d",
			ErrShapeMismatch, a.Rows(), a.Cols(), x.Len())
	}
	switch {
	case a.IsEmpty() && x.IsEmpty():
		metrics.MultiplyErrors.WithLabelValues("empty_operand").Inc()
		return nil, fmt.Errorf("%w: matrix and vector are both empty", ErrEmptyOperand)
	case a.IsEmpty():
		metrics.MultiplyErrors.WithLabelValues("empty_operand").Inc()
		return nil, fmt.Errorf("%w: matrix is %dx%d", ErrEmptyOperand, a.Rows(), a.Cols())
	case x.IsEmpty():
		metrics.MultiplyErrors.WithLabelValues("empty_operand").Inc()
		return nil, fmt.Errorf("%w: vector has length 0", ErrEmptyOperand)
	}

	backend := mgr.Backend()
	start := time.Now()
	y, err := backend.MulVec(a, x)
	if err != nil {
		metrics.MultiplyErrors.WithLabelValues("device").Inc()
		mgr.log.Error("multiply failed",
			zap.String("backend", backend.Name()),
			zap.Int("rows", a.Rows()), zap.Int("cols", a.Cols()),
			zap.Error(err))
		return nil, err
	}
	elapsed := time.Since(start)

	flops := 2 * float64(a.Rows()) * float64(a.Cols())
	metrics.MultiplyDuration.Observe(elapsed.Seconds() * 1000)
	metrics.MultiplyGFLOPS.Set(flops / elapsed.Seconds() / 1e9)

	mgr.log.Debug("multiply completed",
		zap.String("backend", backend.Name()),
		zap.Int("rows", a.Rows()), zap.Int("cols", a.Cols()),
		zap.Duration("elapsed", elapsed))

	return y, nil
}
