package vecindex

import (
	"fmt"
	"testing"
)

func TestFlatInsertAndSearch(t *testing.T) {
	idx := NewFlat(4)

	_ = idx.Insert("a", []float32{1, 0, 0, 0})
	_ = idx.Insert("b", []float32{0, 1, 0, 0})
	_ = idx.Insert("c", []float32{0.9, 0.1, 0, 0})

	matches, err := idx.Search([]float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Key != "a" {
		t.Errorf("top match = %q, want 'a'", matches[0].Key)
	}
	if matches[0].Similarity < 0.999 {
		t.Errorf("self similarity = %f, want ~1", matches[0].Similarity)
	}
	if matches[1].Key != "c" {
		t.Errorf("second match = %q, want 'c'", matches[1].Key)
	}
}

func TestFlatDimensionMismatch(t *testing.T) {
	idx := NewFlat(3)
	if err := idx.Insert("a", []float32{1, 0}); err != ErrDimension {
		t.Errorf("Insert short vector: got %v, want ErrDimension", err)
	}
	if _, err := idx.Search([]float32{1, 0, 0, 0}, 1); err != ErrDimension {
		t.Errorf("Search long query: got %v, want ErrDimension", err)
	}
}

func TestFlatDelete(t *testing.T) {
	idx := NewFlat(2)
	_ = idx.Insert("a", []float32{1, 0})
	if idx.Len() != 1 {
		t.Fatalf("Len = %d, want 1", idx.Len())
	}
	_ = idx.Delete("a")
	if idx.Len() != 0 {
		t.Errorf("Len after delete = %d, want 0", idx.Len())
	}
	// Delete nonexistent should not error.
	if err := idx.Delete("nonexistent"); err != nil {
		t.Fatal(err)
	}
}

func TestFlatSearchEmpty(t *testing.T) {
	idx := NewFlat(3)
	matches, err := idx.Search([]float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if matches != nil {
		t.Errorf("expected nil for empty index, got %v", matches)
	}
}

func TestFlatTieBreakDeterministic(t *testing.T) {
	// Two identical vectors tie exactly; the lower key must always win.
	for range 10 {
		idx := NewFlat(2)
		_ = idx.Insert("z", []float32{1, 0})
		_ = idx.Insert("a", []float32{1, 0})

		matches, err := idx.Search([]float32{1, 0}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if matches[0].Key != "a" || matches[1].Key != "z" {
			t.Fatalf("tie order = [%s %s], want [a z]", matches[0].Key, matches[1].Key)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1},
		{"similar", []float32{1, 0.1, 0}, []float32{1, 0, 0}, 0.995},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 0.01 || diff < -0.01 {
				t.Errorf("CosineSimilarity = %f, want ~%f", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarityEdgeCases(t *testing.T) {
	// Mismatched lengths score 0.
	if s := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); s != 0 {
		t.Errorf("length mismatch: got %f, want 0", s)
	}
	// Zero vector has no direction.
	if s := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 0, 0}); s != 0 {
		t.Errorf("zero vector: got %f, want 0", s)
	}
}

// ---------------------------------------------------------------------------
// Benchmarks
// ---------------------------------------------------------------------------

func BenchmarkFlatSearch(b *testing.B) {
	idx := NewFlat(4)
	for i := 0; i < 1000; i++ {
		v := []float32{
			float32(i%7) / 7.0,
			float32(i%11) / 11.0,
			float32(i%13) / 13.0,
			float32(i%17) / 17.0,
		}
		_ = idx.Insert(fmt.Sprintf("v-%d", i), v)
	}

	query := []float32{0.5, 0.5, 0.5, 0.5}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(query, 10)
	}
}
