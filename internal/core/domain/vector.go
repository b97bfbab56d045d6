package domain

import "math"

// CosineDistance returns 1 - cosine similarity, in [0, 2].
// A zero vector is treated as unrelated to everything (distance 1).
// Callers must pass vectors of equal length.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
