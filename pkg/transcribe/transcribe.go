// Package transcribe defines the speech-to-text collaborator contract and
// a client for OpenAI-compatible Whisper servers.
//
// The transcription model itself is external; this package only carries
// timestamped text spans into the core. Span boundaries are not expected
// to line up with diarization turn boundaries — reconciling the two
// timelines is the align package's job.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kengbailey/transcription-diarization-service/pkg/diarize"
)

// Sentinel errors.
var (
	// ErrUnavailable indicates no transcription backend is configured or
	// the backend cannot be reached. Endpoints that need transcription
	// must fail with this rather than return silent empty output.
	ErrUnavailable = errors.New("transcribe: transcription unavailable")

	// ErrInvalidSpan indicates a span with start >= end or empty text.
	ErrInvalidSpan = errors.New("transcribe: invalid span")
)

// Span is a timestamped fragment of transcribed speech.
type Span struct {
	// Start and End are offsets into the clip, in seconds. End > Start.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Text is the transcribed speech, non-empty.
	Text string `json:"text"`
}

// Validate reports whether the span is well-formed.
func (s Span) Validate() error {
	if s.End <= s.Start {
		return fmt.Errorf("%w: end %g <= start %g", ErrInvalidSpan, s.End, s.Start)
	}
	if strings.TrimSpace(s.Text) == "" {
		return fmt.Errorf("%w: empty text at [%g, %g)", ErrInvalidSpan, s.Start, s.End)
	}
	return nil
}

// Transcript is the full output of one transcription run.
type Transcript struct {
	// Spans are the timestamped fragments, sorted by start time.
	Spans []Span `json:"spans"`

	// Text is the full transcript text.
	Text string `json:"text"`

	// Language is the detected (or requested) language code, e.g. "en".
	Language string `json:"language,omitempty"`

	// Duration is the audio duration in seconds as reported by the
	// backend, 0 if unknown.
	Duration float64 `json:"duration,omitempty"`
}

// Transcriber converts an audio clip into a timestamped transcript.
type Transcriber interface {
	// Transcribe transcribes the whole clip. language is a BCP-47-ish
	// code ("en", "de", ...) or empty for auto-detection.
	Transcribe(ctx context.Context, clip diarize.Clip, language string) (*Transcript, error)
}
