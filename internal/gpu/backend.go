package gpu

import (
	"errors"

	"github.com/nicelabs/nice-gpu/internal/linalg"
)

var (
	// ErrShapeMismatch is returned when matrix columns do not match vector length.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrEmptyOperand is returned when an operand has zero extent.
	ErrEmptyOperand = errors.New("empty operand")
	// ErrInvalidTileWidth is returned for a non-positive tile width.
	ErrInvalidTileWidth = errors.New("invalid tile width")
)

// DefaultBlockDim is the block width used by launch configurations that do
// not take an explicit tile width. Must be a power of two; the reduction
// kernels rely on it.
const DefaultBlockDim = 32

// Backend computes matrix-vector products on the device. All implementations
// produce numerically equivalent results for the same operands; they differ
// in memory-traffic strategy.
//
// Implementation notes:
//   - Backends own the device buffers they allocate and release them on every
//     exit path, including mid-operation failures.
//   - Backends do not validate operand shapes; the Manager does that before
//     any device interaction.
//   - Backends are safe for concurrent use: each call works on buffers it
//     allocated itself, and the device never shares memory between calls.
type Backend[T linalg.Float] interface {
	// MulVec computes y = A*x where A is m×k column-major and x has length k.
	// The returned vector has length m and never aliases the inputs.
	MulVec(a *linalg.Dense[T], x *linalg.Vector[T]) (*linalg.Vector[T], error)

	// Name identifies the backend in logs and metrics.
	Name() string
}
