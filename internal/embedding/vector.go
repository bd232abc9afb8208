// Package embedding normalises face embeddings and ranks a gallery by
// distance to a query face.
package embedding

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateEmbedding is returned for a raw embedding whose L2 norm is
// zero or not finite. Such a vector has no direction to compare.
var ErrDegenerateEmbedding = errors.New("degenerate embedding")

// Vector is an L2-normalised embedding. Only Normalize produces one.
type Vector []float32

// Normalize divides every component of raw by its L2 norm. raw is not modified.
func Normalize(raw []float32) (Vector, error) {
	var sum float64
	for _, v := range raw {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)

	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, fmt.Errorf("%w: norm %v over %d components", ErrDegenerateEmbedding, norm, len(raw))
	}

	out := make(Vector, len(raw))
	for i, v := range raw {
		out[i] = float32(float64(v) / norm)
	}
	return out, nil
}

// Norm returns the L2 norm of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Distance returns the squared Euclidean distance between a and b.
// The vectors must have the same length; anything else is a programming
// error and panics.
func Distance(a, b Vector) float32 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("embedding: distance between vectors of length %d and %d", len(a), len(b)))
	}
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
