// Package vecindex provides similarity search over dense float32
// voiceprint vectors.
//
// The [Index] interface defines the contract for vector storage and
// search. The built-in [Flat] implementation is an exact brute-force
// scan, which is the right default for speaker registries (tens to low
// thousands of voiceprints); an approximate index is an optimization,
// not a correctness requirement, and can be swapped in behind the same
// interface.
//
// Scores are raw cosine similarity in [-1, 1], higher is more similar.
// This one convention is used both for threshold checks and for the
// confidence values reported to callers.
package vecindex

import (
	"errors"
	"math"
)

// ErrDimension is returned when a vector's length does not match the
// index's configured dimensionality.
var ErrDimension = errors.New("vecindex: vector dimension mismatch")

// Index is the interface for similarity search over dense float32 vectors.
//
// All implementations must be safe for concurrent use.
type Index interface {
	// Insert adds or updates a vector with the given key.
	// Returns ErrDimension if the vector length does not match the
	// index dimensionality.
	Insert(key string, vector []float32) error

	// Delete removes a vector by key. No error if the key does not exist.
	Delete(key string) error

	// Search returns up to topK keys ordered by descending cosine
	// similarity to the query. Ties within floating-point tolerance are
	// broken by ascending key, so result order is deterministic.
	Search(query []float32, topK int) ([]Match, error)

	// Len returns the number of vectors in the index.
	Len() int

	// Close releases resources held by the index.
	Close() error
}

// Match is a single result from a similarity search.
type Match struct {
	// Key is the identifier of the matched vector.
	Key string

	// Similarity is the raw cosine similarity between the query and the
	// matched vector, in [-1, 1]. Higher values indicate higher similarity.
	Similarity float32
}

// CosineSimilarity computes the cosine similarity between two vectors,
// clamped to [-1, 1]. Mismatched lengths or a zero-norm vector score 0
// (a zero vector has no direction).
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors.
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return float32(sim)
}
