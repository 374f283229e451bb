package vecindex

import (
	"sort"
	"sync"
)

// simEpsilon is the tolerance within which two similarity scores are
// considered tied; ties are broken by ascending key.
const simEpsilon = 1e-6

// Flat is an exact brute-force Index. Every stored vector is scored
// against the query on each search.
//
// It is safe for concurrent use.
type Flat struct {
	dim     int
	mu      sync.RWMutex
	vectors map[string][]float32
}

var _ Index = (*Flat)(nil)

// NewFlat creates an empty exact index for vectors of the given
// dimensionality.
func NewFlat(dim int) *Flat {
	return &Flat{
		dim:     dim,
		vectors: make(map[string][]float32),
	}
}

// Dimension returns the configured vector dimensionality.
func (f *Flat) Dimension() int {
	return f.dim
}

func (f *Flat) Insert(key string, vector []float32) error {
	if len(vector) != f.dim {
		return ErrDimension
	}
	cp := make([]float32, len(vector))
	copy(cp, vector)
	f.mu.Lock()
	f.vectors[key] = cp
	f.mu.Unlock()
	return nil
}

func (f *Flat) Delete(key string) error {
	f.mu.Lock()
	delete(f.vectors, key)
	f.mu.Unlock()
	return nil
}

func (f *Flat) Search(query []float32, topK int) ([]Match, error) {
	if len(query) != f.dim {
		return nil, ErrDimension
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.vectors) == 0 || topK <= 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(f.vectors))
	for key, vec := range f.vectors {
		matches = append(matches, Match{Key: key, Similarity: CosineSimilarity(query, vec)})
	}

	sort.Slice(matches, func(i, j int) bool {
		d := matches[i].Similarity - matches[j].Similarity
		if d > simEpsilon {
			return true
		}
		if d < -simEpsilon {
			return false
		}
		return matches[i].Key < matches[j].Key
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

func (f *Flat) Close() error {
	return nil
}
