// Package speakerdb is the persistent speaker registry.
//
// Identities and their voiceprints live in BadgerDB as msgpack-encoded
// records; an in-memory flat vector index over all voiceprints is rebuilt
// on open and kept in sync on every mutation. Voiceprints are stored
// un-averaged: each enrollment sample keeps its own vector, and searches
// deduplicate per identity by keeping the best-scoring voiceprint.
package speakerdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kengbailey/transcription-diarization-service/pkg/vecindex"
)

var (
	// ErrNotFound is returned when an identity does not exist.
	ErrNotFound = errors.New("speakerdb: identity not found")

	// ErrDimensionMismatch is returned when a vector's length does not
	// match the registry dimension. Nothing is written in that case.
	ErrDimensionMismatch = errors.New("speakerdb: vector dimension mismatch")
)

// Identity is a registered speaker as exposed to callers. Vectors are
// never returned; they stay inside the registry.
type Identity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Samples   int       `json:"num_samples"`
	CreatedAt time.Time `json:"created_at"`
}

// Result is a single search hit: the best-scoring voiceprint of one
// identity.
type Result struct {
	Identity   Identity
	Similarity float32
}

// Stats summarizes the registry contents.
type Stats struct {
	Identities  int `json:"num_speakers"`
	Voiceprints int `json:"num_voiceprints"`
	Dimension   int `json:"embedding_dimension"`
}

// identityRecord is the persisted form of an identity.
type identityRecord struct {
	ID        string `msgpack:"id"`
	Name      string `msgpack:"name"`
	Samples   int    `msgpack:"samples"`
	CreatedAt int64  `msgpack:"created_at"` // unix nanoseconds
}

func (r identityRecord) identity() Identity {
	return Identity{
		ID:        r.ID,
		Name:      r.Name,
		Samples:   r.Samples,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

// voiceprintRecord is the persisted form of one enrollment sample's
// embedding.
type voiceprintRecord struct {
	Vector  []float32 `msgpack:"vector"`
	AddedAt int64     `msgpack:"added_at"` // unix nanoseconds
	Source  string    `msgpack:"source,omitempty"`
}

// Options configures a registry.
type Options struct {
	// Dir is the badger data directory. Required unless InMemory is set.
	Dir string

	// Dimension is the voiceprint vector dimension. Required.
	Dimension int

	// InMemory runs badger without disk persistence. For tests.
	InMemory bool

	// ReadOnly opens the underlying badger store read-only.
	ReadOnly bool
}

// DB is the speaker registry handle. Safe for concurrent use.
type DB struct {
	db    *badger.DB
	index *vecindex.Flat
	dim   int

	mu    sync.Mutex // guards locks
	locks map[string]*sync.Mutex
}

// Open opens (or creates) a registry and rebuilds the vector index from
// the persisted voiceprints.
func Open(opts Options) (*DB, error) {
	if opts.Dimension <= 0 {
		return nil, errors.New("speakerdb: Options.Dimension is required")
	}
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("speakerdb: Options.Dir is required for on-disk mode")
	}

	bopts := badger.DefaultOptions(opts.Dir).WithLogger(nopLogger{})
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
	}
	if opts.ReadOnly {
		bopts = bopts.WithReadOnly(true)
	}
	bdb, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("speakerdb: open badger: %w", err)
	}

	db := &DB{
		db:    bdb,
		index: vecindex.NewFlat(opts.Dimension),
		dim:   opts.Dimension,
		locks: make(map[string]*sync.Mutex),
	}
	if err := db.rebuildIndex(); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the registry. The handle must not be used afterwards.
func (d *DB) Close() error {
	if err := d.index.Close(); err != nil {
		return err
	}
	return d.db.Close()
}

// rebuildIndex scans every persisted voiceprint into the flat index.
func (d *DB) rebuildIndex() error {
	prefix := allVoiceprintsPrefix()
	return d.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id, seq, err := parseVoiceprintKey(item.KeyCopy(nil))
			if err != nil {
				return err
			}
			var rec voiceprintRecord
			if err := item.Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("speakerdb: decode voiceprint %s/%d: %w", id, seq, err)
			}
			if err := d.index.Insert(indexKey(id, seq), rec.Vector); err != nil {
				return fmt.Errorf("speakerdb: index voiceprint %s/%d: %w", id, seq, err)
			}
		}
		return nil
	})
}

// identityLock returns the append lock for one identity.
func (d *DB) identityLock(id string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[id]
	if !ok {
		l = &sync.Mutex{}
		d.locks[id] = l
	}
	return l
}

func (d *DB) checkDim(vector []float32) error {
	if len(vector) != d.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), d.dim)
	}
	return nil
}

// Create registers a new identity with its first voiceprint. The identity
// record and the voiceprint are written in one transaction, so an identity
// is never persisted without at least one voiceprint.
func (d *DB) Create(_ context.Context, name string, vector []float32, source string) (Identity, error) {
	if name == "" {
		return Identity{}, errors.New("speakerdb: name is required")
	}
	if err := d.checkDim(vector); err != nil {
		return Identity{}, err
	}

	now := time.Now().UTC()
	rec := identityRecord{
		ID:        uuid.NewString(),
		Name:      name,
		Samples:   1,
		CreatedAt: now.UnixNano(),
	}
	vp := voiceprintRecord{Vector: vector, AddedAt: now.UnixNano(), Source: source}

	idData, err := msgpack.Marshal(rec)
	if err != nil {
		return Identity{}, err
	}
	vpData, err := msgpack.Marshal(vp)
	if err != nil {
		return Identity{}, err
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(identityKey(rec.ID), idData); err != nil {
			return err
		}
		return txn.Set(voiceprintKey(rec.ID, 0), vpData)
	})
	if err != nil {
		return Identity{}, fmt.Errorf("speakerdb: create %q: %w", name, err)
	}

	if err := d.index.Insert(indexKey(rec.ID, 0), vector); err != nil {
		return Identity{}, err
	}
	return rec.identity(), nil
}

// AddVoiceprint appends a voiceprint to an existing identity and returns
// the updated identity. Concurrent appends to the same identity are
// serialized.
func (d *DB) AddVoiceprint(ctx context.Context, id string, vector []float32, source string) (Identity, error) {
	if err := d.checkDim(vector); err != nil {
		return Identity{}, err
	}

	l := d.identityLock(id)
	l.Lock()
	defer l.Unlock()

	rec, err := d.getRecord(ctx, id)
	if err != nil {
		return Identity{}, err
	}

	seq := rec.Samples
	rec.Samples++

	vp := voiceprintRecord{Vector: vector, AddedAt: time.Now().UTC().UnixNano(), Source: source}
	idData, err := msgpack.Marshal(rec)
	if err != nil {
		return Identity{}, err
	}
	vpData, err := msgpack.Marshal(vp)
	if err != nil {
		return Identity{}, err
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(identityKey(id), idData); err != nil {
			return err
		}
		return txn.Set(voiceprintKey(id, seq), vpData)
	})
	if err != nil {
		return Identity{}, fmt.Errorf("speakerdb: add voiceprint to %s: %w", id, err)
	}

	if err := d.index.Insert(indexKey(id, seq), vector); err != nil {
		return Identity{}, err
	}
	return rec.identity(), nil
}

// Search finds the identities closest to the query vector. All voiceprints
// are searched and the hits are deduplicated per identity, keeping each
// identity's best-scoring voiceprint. Results are sorted by similarity
// descending, at most topK of them.
func (d *DB) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if err := d.checkDim(query); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 1
	}

	// The flat index is exact, so search everything and dedupe after.
	matches, err := d.index.Search(query, d.index.Len())
	if err != nil {
		return nil, err
	}

	var out []Result
	seen := make(map[string]bool)
	for _, m := range matches {
		id := identityOfIndexKey(m.Key)
		if seen[id] {
			continue // a lower-scoring voiceprint of an identity already hit
		}
		seen[id] = true

		rec, err := d.getRecord(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // index raced a delete
			}
			return nil, err
		}
		out = append(out, Result{Identity: rec.identity(), Similarity: m.Similarity})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// Get returns one identity by ID.
func (d *DB) Get(ctx context.Context, id string) (Identity, error) {
	rec, err := d.getRecord(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	return rec.identity(), nil
}

func (d *DB) getRecord(_ context.Context, id string) (identityRecord, error) {
	var rec identityRecord
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(identityKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return identityRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return identityRecord{}, err
	}
	return rec, nil
}

// List returns all identities, without vectors, ordered by ID.
func (d *DB) List(_ context.Context) ([]Identity, error) {
	prefix := identityPrefix()
	var out []Identity
	err := d.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec identityRecord
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec.identity())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes an identity, all its voiceprints, and their index
// entries. It returns the number of voiceprints removed. Deleting an
// unknown identity returns [ErrNotFound].
func (d *DB) Delete(ctx context.Context, id string) (int, error) {
	l := d.identityLock(id)
	l.Lock()
	defer l.Unlock()

	if _, err := d.getRecord(ctx, id); err != nil {
		return 0, err
	}

	// Collect voiceprint keys first, then delete everything in one
	// transaction.
	var vpKeys [][]byte
	var seqs []int
	prefix := voiceprintPrefix(id)
	err := d.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			_, seq, err := parseVoiceprintKey(key)
			if err != nil {
				return err
			}
			vpKeys = append(vpKeys, key)
			seqs = append(seqs, seq)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(identityKey(id)); err != nil {
			return err
		}
		for _, key := range vpKeys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("speakerdb: delete %s: %w", id, err)
	}

	for _, seq := range seqs {
		_ = d.index.Delete(indexKey(id, seq))
	}

	d.mu.Lock()
	delete(d.locks, id)
	d.mu.Unlock()

	return len(vpKeys), nil
}

// Stats reports registry counts and the configured dimension.
func (d *DB) Stats(ctx context.Context) (Stats, error) {
	ids, err := d.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Identities:  len(ids),
		Voiceprints: d.index.Len(),
		Dimension:   d.dim,
	}, nil
}

// Dimension returns the registry's vector dimension.
func (d *DB) Dimension() int {
	return d.dim
}

// nopLogger silences badger's internal logging.
type nopLogger struct{}

func (nopLogger) Errorf(string, ...interface{})   {}
func (nopLogger) Warningf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})    {}
func (nopLogger) Debugf(string, ...interface{})   {}
