package lexical

import "math"

// Vector is a sparse TF-IDF vector. Indices are strictly increasing and
// Values are aligned with them. A zero vector has no entries.
type Vector struct {
	Indices []int32
	Values  []float32
}

// Len returns the number of non-zero entries.
func (v Vector) Len() int {
	return len(v.Indices)
}

// IsZero reports whether v has no non-zero entries.
func (v Vector) IsZero() bool {
	return len(v.Indices) == 0
}

// Dot returns the inner product of two sparse vectors. For L2-normalised
// vectors this is their cosine similarity.
func (v Vector) Dot(o Vector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v.Indices) && j < len(o.Indices) {
		switch {
		case v.Indices[i] == o.Indices[j]:
			sum += float64(v.Values[i]) * float64(o.Values[j])
			i++
			j++
		case v.Indices[i] < o.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// Norm returns the Euclidean norm of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v.Values {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Dense expands v into a slice of length dim.
func (v Vector) Dense(dim int) []float32 {
	out := make([]float32, dim)
	for k, idx := range v.Indices {
		if int(idx) < dim {
			out[idx] = v.Values[k]
		}
	}
	return out
}

// normalize scales values in place to unit length. Zero vectors are left
// untouched.
func normalize(values []float64) {
	var sum float64
	for _, x := range values {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range values {
		values[i] *= inv
	}
}
