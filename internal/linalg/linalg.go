package linalg

import (
	"fmt"
	"math/rand"
)

// Float constrains element types to the floating-point widths the compute
// backends support. Integral and narrow types are rejected at compile time.
type Float interface {
	~float32 | ~float64
}

// Dense is a host-resident dense matrix with contiguous column-major storage.
// It is an immutable input to the compute backends.
type Dense[T Float] struct {
	rows, cols int
	data       []T
}

// NewDense creates an r×c matrix backed by data in column-major order.
// If data is nil a zeroed backing slice is allocated.
func NewDense[T Float](r, c int, data []T) (*Dense[T], error) {
	if r < 0 || c < 0 {
		return nil, fmt.Errorf("negative dimension %dx%d", r, c)
	}
	if data == nil {
		data = make([]T, r*c)
	}
	if len(data) != r*c {
		return nil, fmt.Errorf("matrix data size mismatch: expected %d, got %d", r*c, len(data))
	}
	return &Dense[T]{rows: r, cols: c, data: data}, nil
}

// Ones returns an r×c matrix with every element set to 1.
func Ones[T Float](r, c int) *Dense[T] {
	data := make([]T, r*c)
	for i := range data {
		data[i] = 1
	}
	m, _ := NewDense(r, c, data)
	return m
}

// RandomDense returns an r×c matrix with elements drawn uniformly from [-1, 1).
func RandomDense[T Float](rng *rand.Rand, r, c int) *Dense[T] {
	data := make([]T, r*c)
	for i := range data {
		data[i] = T(rng.Float64()*2 - 1)
	}
	m, _ := NewDense(r, c, data)
	return m
}

// Rows returns the row count.
func (m *Dense[T]) Rows() int { return m.rows }

// Cols returns the column count.
func (m *Dense[T]) Cols() int { return m.cols }

// At returns the element at row i, column j.
func (m *Dense[T]) At(i, j int) T { return m.data[j*m.rows+i] }

// Data returns the column-major backing slice. Callers must not mutate it
// while a multiply is in flight.
func (m *Dense[T]) Data() []T { return m.data }

// IsEmpty reports whether the matrix has zero rows or zero columns.
func (m *Dense[T]) IsEmpty() bool { return m.rows == 0 || m.cols == 0 }

// Vector is a host-resident dense vector.
type Vector[T Float] struct {
	data []T
}

// NewVector wraps data as a vector. If data is nil a zeroed slice of length n
// is allocated.
func NewVector[T Float](n int, data []T) (*Vector[T], error) {
	if n < 0 {
		return nil, fmt.Errorf("negative length %d", n)
	}
	if data == nil {
		data = make([]T, n)
	}
	if len(data) != n {
		return nil, fmt.Errorf("vector data size mismatch: expected %d, got %d", n, len(data))
	}
	return &Vector[T]{data: data}, nil
}

// OnesVector returns a length-n vector of all ones.
func OnesVector[T Float](n int) *Vector[T] {
	data := make([]T, n)
	for i := range data {
		data[i] = 1
	}
	v, _ := NewVector(n, data)
	return v
}

// RandomVector returns a length-n vector with elements drawn uniformly from [-1, 1).
func RandomVector[T Float](rng *rand.Rand, n int) *Vector[T] {
	data := make([]T, n)
	for i := range data {
		data[i] = T(rng.Float64()*2 - 1)
	}
	v, _ := NewVector(n, data)
	return v
}

// Len returns the number of elements.
func (v *Vector[T]) Len() int { return len(v.data) }

// At returns the i-th element.
func (v *Vector[T]) At(i int) T { return v.data[i] }

// Data returns the backing slice.
func (v *Vector[T]) Data() []T { return v.data }

// IsEmpty reports whether the vector has zero elements.
func (v *Vector[T]) IsEmpty() bool { return len(v.data) == 0 }
