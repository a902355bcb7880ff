package scoring

import "math"

// MaxDistance is the cosine distance between opposite directions.
const MaxDistance = 2.0

// Dot returns the dot product of a and b, accumulated in float64.
// Vectors of unequal length are compared over their common prefix.
func Dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	return math.Sqrt(Dot(v, v))
}

// Cosine returns the classic cosine similarity (a·b)/(‖a‖‖b‖) in [-1, 1].
// It is 0 when either vector is zero.
func Cosine(a, b []float32) float64 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	c := Dot(a, b) / (na * nb)
	return math.Max(-1, math.Min(1, c))
}

// CosineDistance returns 1 − cos(a, b) in [0, 2].
// A zero vector is maximally distant from everything.
func CosineDistance(a, b []float32) float64 {
	if Norm(a) == 0 || Norm(b) == 0 {
		return MaxDistance
	}
	return 1 - Cosine(a, b)
}

// UnitDistance is CosineDistance for inputs already normalized to unit length.
// It skips the norm computation on the query hot path.
func UnitDistance(a, b []float32) float64 {
	d := 1 - Dot(a, b)
	return math.Max(0, math.Min(MaxDistance, d))
}

// Similarity converts a cosine distance to a similarity in [0, 1].
func Similarity(distance float64) float64 {
	s := 1 - distance/2
	return math.Max(0, math.Min(1, s))
}

// VectorSimilarity returns Similarity(CosineDistance(a, b)).
// For non-zero inputs this equals (1 + Cosine(a, b)) / 2.
func VectorSimilarity(a, b []float32) float64 {
	return Similarity(CosineDistance(a, b))
}

// Normalize returns a unit-length copy of v.
// The zero vector normalizes to the zero vector.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}
