// Package embed turns text into fixed-dimension vectors.
//
// A Model is the raw provider. An Engine owns exactly one Model and runs every
// embedding call on a single goroutine, so callers never share the model
// concurrently.
package embed

import (
	"context"
	"math"
)

// DefaultBatchSize is the number of texts sent to the model per call.
const DefaultBatchSize = 32

// DefaultDimensions is the vector size of the reference model (all-MiniLM-L6-v2).
const DefaultDimensions = 384

// Model is an embedding provider.
type Model interface {
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the vector size, or 0 if it is only known after a call.
	Dimensions() int
	// Name identifies the model.
	Name() string
}

// normalizeVector scales v to unit length in place and returns it.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
	return v
}
