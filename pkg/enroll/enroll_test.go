package enroll

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kengbailey/transcription-diarization-service/pkg/diarize"
	"github.com/kengbailey/transcription-diarization-service/pkg/samplestore"
	"github.com/kengbailey/transcription-diarization-service/pkg/speakerdb"
)

// fakeEmbedder returns a fixed vector, or a configured error.
type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

var _ diarize.Embedder = (*fakeEmbedder)(nil)

func (f *fakeEmbedder) Embed(ctx context.Context, clip diarize.Clip, start, end float64) ([]float32, error) {
	return f.EmbedClip(ctx, clip)
}

func (f *fakeEmbedder) EmbedClip(_ context.Context, _ diarize.Clip) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) Dimension() int { return len(f.vec) }

func newTestDB(t *testing.T) *speakerdb.DB {
	t.Helper()
	db, err := speakerdb.Open(speakerdb.Options{Dimension: 4, InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRegister(t *testing.T) {
	db := newTestDB(t)
	emb := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	m := NewManager(db, emb)

	id, err := m.Register(context.Background(), "alice", diarize.Clip{Data: []byte("RIFF"), Name: "alice.wav"})
	if err != nil {
		t.Fatal(err)
	}
	if id.Name != "alice" || id.Samples != 1 {
		t.Errorf("Register = %+v", id)
	}
	if emb.calls != 1 {
		t.Errorf("embedder calls = %d, want 1", emb.calls)
	}
}

func TestRegisterEmbedFailureLeavesNothing(t *testing.T) {
	db := newTestDB(t)
	embErr := fmt.Errorf("%w: silence", diarize.ErrExtraction)
	m := NewManager(db, &fakeEmbedder{err: embErr})

	_, err := m.Register(context.Background(), "alice", diarize.Clip{Data: []byte("RIFF")})
	if !errors.Is(err, diarize.ErrExtraction) {
		t.Fatalf("Register = %v, want ErrExtraction", err)
	}

	ids, err := db.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("registry has %d identities after failed enrollment, want 0", len(ids))
	}
}

func TestAddSample(t *testing.T) {
	db := newTestDB(t)
	emb := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	m := NewManager(db, emb)
	ctx := context.Background()

	id, err := m.Register(ctx, "alice", diarize.Clip{Data: []byte("RIFF"), Name: "a.wav"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := m.AddSample(ctx, id.ID, diarize.Clip{Data: []byte("RIFF2"), Name: "b.wav"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Samples != 2 {
		t.Errorf("Samples = %d, want 2", updated.Samples)
	}
}

func TestAddSampleUnknownID(t *testing.T) {
	db := newTestDB(t)
	emb := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	m := NewManager(db, emb)

	_, err := m.AddSample(context.Background(), "nope", diarize.Clip{Data: []byte("RIFF")})
	if !errors.Is(err, speakerdb.ErrNotFound) {
		t.Fatalf("AddSample = %v, want ErrNotFound", err)
	}
	// The existence check runs before the embedder is spent.
	if emb.calls != 0 {
		t.Errorf("embedder calls = %d, want 0", emb.calls)
	}
}

func TestRegisterArchivesSample(t *testing.T) {
	db := newTestDB(t)
	store, err := samplestore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(db, &fakeEmbedder{vec: []float32{1, 0, 0, 0}}, WithSampleStore(store))
	ctx := context.Background()

	id, err := m.Register(ctx, "alice", diarize.Clip{Data: []byte("RIFF"), Name: "alice.wav"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, samplestore.SampleKey(id.ID, 0, "alice.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "RIFF" {
		t.Errorf("archived sample = %q, want RIFF", got)
	}

	if _, err := m.AddSample(ctx, id.ID, diarize.Clip{Data: []byte("RIFF2"), Name: "more.mp3"}); err != nil {
		t.Fatal(err)
	}
	got, err = store.Get(ctx, samplestore.SampleKey(id.ID, 1, "more.mp3"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "RIFF2" {
		t.Errorf("archived sample = %q, want RIFF2", got)
	}
}

// failingStore always errors; archival failures must not fail enrollment.
type failingStore struct{}

var _ samplestore.Store = failingStore{}

func (failingStore) Put(context.Context, string, []byte) error { return errors.New("disk full") }
func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk full")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("disk full") }
func (failingStore) Exists(context.Context, string) (bool, error) {
	return false, errors.New("disk full")
}

func TestArchivalFailureIsNotFatal(t *testing.T) {
	db := newTestDB(t)
	m := NewManager(db, &fakeEmbedder{vec: []float32{1, 0, 0, 0}}, WithSampleStore(failingStore{}))

	id, err := m.Register(context.Background(), "alice", diarize.Clip{Data: []byte("RIFF"), Name: "a.wav"})
	if err != nil {
		t.Fatalf("Register failed on archival error: %v", err)
	}
	if id.Samples != 1 {
		t.Errorf("Samples = %d, want 1", id.Samples)
	}
}
