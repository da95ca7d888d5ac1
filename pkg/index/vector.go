package index

import "math"

// normalize returns v scaled to unit length. A zero vector is returned unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

// cosineFromL2 converts the L2 distance of two unit vectors to their cosine similarity
func cosineFromL2(d float64) float64 {
	return 1 - d*d/2
}
