// Package identify maps anonymous diarization turns to registered
// speakers.
//
// Diarization labels (SPEAKER_00, ...) are per-clip; identities are
// global. The matcher embeds one representative turn per label, searches
// the registry, and propagates each label's decision to all turns
// carrying that label. Labels that cannot be matched stay anonymous; a
// partial result is always preferred over no result.
package identify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kengbailey/transcription-diarization-service/pkg/diarize"
	"github.com/kengbailey/transcription-diarization-service/pkg/speakerdb"
)

// DefaultThreshold is the minimum cosine similarity for accepting a
// registry match as the speaker's identity.
const DefaultThreshold = 0.7

// Match is a successful registry lookup for one diarization label.
type Match struct {
	IdentityID string  `json:"speaker_id"`
	Name       string  `json:"speaker_name"`
	Confidence float32 `json:"confidence"`
}

// IdentifiedTurn is a diarization turn with an optional identity.
// IdentifiedAs is nil when the label stayed anonymous.
type IdentifiedTurn struct {
	diarize.Turn
	IdentifiedAs *Match `json:"identified_as,omitempty"`
}

// Matcher resolves diarization labels against the speaker registry.
type Matcher struct {
	db        *speakerdb.DB
	embedder  diarize.Embedder
	threshold float32
	logger    *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThreshold sets the default similarity threshold.
func WithThreshold(t float32) Option {
	return func(m *Matcher) { m.threshold = t }
}

// WithLogger sets the logger for per-label degradation events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// NewMatcher creates a matcher over the registry and embedder.
func NewMatcher(db *speakerdb.DB, embedder diarize.Embedder, opts ...Option) *Matcher {
	m := &Matcher{
		db:        db,
		embedder:  embedder,
		threshold: DefaultThreshold,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Threshold returns the matcher's default similarity threshold.
func (m *Matcher) Threshold() float32 {
	return m.threshold
}

// MatchTurns identifies the given turns using the default threshold.
func (m *Matcher) MatchTurns(ctx context.Context, clip diarize.Clip, turns []diarize.Turn) ([]IdentifiedTurn, error) {
	return m.MatchTurnsThreshold(ctx, clip, turns, m.threshold)
}

// MatchTurnsThreshold identifies the given turns against the registry.
//
// One representative turn per label is embedded (the longest; ties go to
// the earliest start, so the choice is deterministic). Representatives
// are embedded concurrently, then each label takes the registry's best
// hit if its similarity reaches the threshold. The decision is propagated
// to every turn with that label; input order is preserved.
//
// A label whose embedding or search fails is left anonymous and logged.
// Only [diarize.ErrUnavailable] aborts: if the model backend is down, no
// label would resolve and the caller should know.
func (m *Matcher) MatchTurnsThreshold(ctx context.Context, clip diarize.Clip, turns []diarize.Turn, threshold float32) ([]IdentifiedTurn, error) {
	out := make([]IdentifiedTurn, len(turns))
	for i, t := range turns {
		out[i] = IdentifiedTurn{Turn: t}
	}
	if len(turns) == 0 {
		return out, nil
	}

	reps := representatives(turns)

	type labelResult struct {
		vec []float32
		err error
	}
	results := make(map[string]*labelResult, len(reps))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for label, rep := range reps {
		wg.Add(1)
		go func(label string, rep diarize.Turn) {
			defer wg.Done()
			vec, err := m.embedder.Embed(ctx, clip, rep.Start, rep.End)
			mu.Lock()
			results[label] = &labelResult{vec: vec, err: err}
			mu.Unlock()
		}(label, rep)
	}
	wg.Wait()

	matches := make(map[string]*Match, len(reps))
	for label, res := range results {
		if res.err != nil {
			if errors.Is(res.err, diarize.ErrUnavailable) {
				return nil, res.err
			}
			m.logger.Warn("embedding failed, leaving label anonymous",
				"label", label, "error", res.err)
			continue
		}

		hits, err := m.db.Search(ctx, res.vec, 1)
		if err != nil {
			m.logger.Warn("registry search failed, leaving label anonymous",
				"label", label, "error", err)
			continue
		}
		if len(hits) == 0 || hits[0].Similarity < threshold {
			continue
		}
		matches[label] = &Match{
			IdentityID: hits[0].Identity.ID,
			Name:       hits[0].Identity.Name,
			Confidence: hits[0].Similarity,
		}
	}

	for i := range out {
		out[i].IdentifiedAs = matches[out[i].Label]
	}
	return out, nil
}

// representatives picks the turn to embed for each label: the longest
// turn, with ties broken by earliest start.
func representatives(turns []diarize.Turn) map[string]diarize.Turn {
	reps := make(map[string]diarize.Turn)
	for _, t := range turns {
		cur, ok := reps[t.Label]
		if !ok {
			reps[t.Label] = t
			continue
		}
		switch {
		case t.Duration() > cur.Duration():
			reps[t.Label] = t
		case t.Duration() == cur.Duration() && t.Start < cur.Start:
			reps[t.Label] = t
		}
	}
	return reps
}
