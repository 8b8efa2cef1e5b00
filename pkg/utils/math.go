package utils

import "math"

// Float is the element type of embedding and feature vectors.
type Float interface {
	~float32 | ~float64
}

// L2Norm returns the Euclidean length of x, accumulated in float64.
func L2Norm[T Float](x []T) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// NormalizeL2 scales x in place to unit length. Zero vectors are left alone.
func NormalizeL2[T Float](x []T) {
	n := L2Norm(x)
	if n == 0 {
		return
	}
	inv := 1 / n
	for i, v := range x {
		x[i] = T(float64(v) * inv)
	}
}
