// Package diarize defines the domain types and collaborator contracts for
// speaker diarization and voiceprint embedding.
//
// Diarization and embedding extraction are delegated to external neural
// models (e.g. a pyannote sidecar). This package treats them as black-box
// collaborators: a [Diarizer] turns an audio clip into time-stamped,
// anonymously-labeled speaker turns, and an [Embedder] turns an audio span
// into a fixed-length voiceprint vector.
//
// Turn labels (e.g. "SPEAKER_00") are scoped to a single diarization run
// and are meaningless across runs. They must never be confused with the
// durable identity IDs managed by the speaker registry; mapping label to
// identity is rebuilt per request by the matcher.
package diarize

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrUnavailable indicates the diarization or embedding model is not
	// loaded or the model service cannot be reached.
	ErrUnavailable = errors.New("diarize: model unavailable")

	// ErrExtraction indicates the model could not produce output for this
	// particular input (e.g. silence-only or corrupt audio). The input is
	// at fault, not the service; retrying the same clip will not help.
	ErrExtraction = errors.New("diarize: extraction failed")
)

// Clip is an opaque audio sample. Decoding, resampling, and format
// handling are the collaborators' concern; the core only moves bytes.
type Clip struct {
	// Data is the raw encoded audio.
	Data []byte

	// Name is the original file name, kept for format sniffing by
	// collaborators and for sample archival. May be empty.
	Name string
}

// Turn is a time-bounded assertion that a single anonymous speaker was
// talking.
type Turn struct {
	// Label is the session-scoped anonymous speaker tag (e.g. "SPEAKER_00").
	Label string `json:"speaker"`

	// Start and End are offsets into the clip, in seconds. End > Start.
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the turn length in seconds.
func (t Turn) Duration() float64 {
	return t.End - t.Start
}

// Validate reports whether the turn is well-formed.
func (t Turn) Validate() error {
	if t.Label == "" {
		return fmt.Errorf("diarize: turn [%g, %g) has empty label", t.Start, t.End)
	}
	if t.End <= t.Start {
		return fmt.Errorf("diarize: turn %q has end %g <= start %g", t.Label, t.End, t.Start)
	}
	return nil
}

// Options bound the speaker search space of a diarization run.
// Zero values mean "unset".
type Options struct {
	// NumSpeakers fixes the exact speaker count when known.
	NumSpeakers int

	// MinSpeakers and MaxSpeakers bound the speaker count.
	MinSpeakers int
	MaxSpeakers int

	// Exclusive requests non-overlapping turns, which simplifies
	// transcript alignment.
	Exclusive bool
}

// Diarizer segments an audio clip into anonymous speaker turns.
type Diarizer interface {
	// Diarize returns the speaker turns found in the clip, sorted by
	// start time. Returns ErrUnavailable when the model is not loaded.
	Diarize(ctx context.Context, clip Clip, opts Options) ([]Turn, error)
}

// Embedder computes fixed-length voiceprint vectors from audio.
type Embedder interface {
	// Embed extracts the voiceprint for the [start, end) span of the clip,
	// in seconds. Returns ErrExtraction if no usable voice is found there.
	Embed(ctx context.Context, clip Clip, start, end float64) ([]float32, error)

	// EmbedClip extracts a single voiceprint for the whole clip.
	// Used for enrollment, where the sample is assumed to contain one
	// speaker.
	EmbedClip(ctx context.Context, clip Clip) ([]float32, error)

	// Dimension returns the length of the vectors this embedder produces.
	Dimension() int
}
