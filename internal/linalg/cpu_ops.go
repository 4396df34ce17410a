package linalg

import (
	"fmt"
	"math"
)

// MulVec computes y = A*x on the CPU with a sequential reduction over the
// columns of A. It is the reference implementation the GPU backends are
// validated against; the reduction order (column 0..k-1) matches the kernels
// so results are comparable within a small tolerance.
func MulVec[T Float](a *Dense[T], x *Vector[T]) (*Vector[T], error) {
	if a.Cols() != x.Len() {
		return nil, fmt.Errorf("dimension mismatch: matrix is %dx%d, vector has length %d",
			a.Rows(), a.Cols(), x.Len())
	}
	m, k := a.Rows(), a.Cols()
	ad, xd := a.Data(), x.Data()
	out := make([]T, m)
	for row := 0; row < m; row++ {
		var sum T
		for col := 0; col < k; col++ {
			sum += ad[col*m+row] * xd[col]
		}
		out[row] = sum
	}
	return NewVector(m, out)
}

// SquaredNorm returns the sum of squared elements of v.
func SquaredNorm[T Float](v *Vector[T]) T {
	var sum T
	for _, e := range v.Data() {
		sum += e * e
	}
	return sum
}

// Norm returns the Euclidean norm of v.
func Norm[T Float](v *Vector[T]) T {
	return T(math.Sqrt(float64(SquaredNorm(v))))
}
