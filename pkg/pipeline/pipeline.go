// Package pipeline composes the collaborators into the service's three
// end-to-end operations: diarize-and-identify, diarize-and-transcribe,
// and the full identified transcript.
//
// The pipeline holds no state beyond its wiring and performs no retries;
// callers own timeouts through ctx. Diarization and transcription hit
// independent backends and run concurrently when both are needed.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/kengbailey/transcription-diarization-service/pkg/align"
	"github.com/kengbailey/transcription-diarization-service/pkg/diarize"
	"github.com/kengbailey/transcription-diarization-service/pkg/identify"
	"github.com/kengbailey/transcription-diarization-service/pkg/transcribe"
)

// Pipeline wires the collaborators together. Construct with [New]; all
// fields are required except the transcriber, which may be nil when the
// deployment has no speech-to-text backend.
type Pipeline struct {
	diarizer    diarize.Diarizer
	transcriber transcribe.Transcriber
	matcher     *identify.Matcher
}

// Config lists the pipeline's collaborators.
type Config struct {
	Diarizer    diarize.Diarizer
	Transcriber transcribe.Transcriber // optional
	Matcher     *identify.Matcher
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Diarizer == nil {
		return nil, fmt.Errorf("pipeline: Diarizer is required")
	}
	if cfg.Matcher == nil {
		return nil, fmt.Errorf("pipeline: Matcher is required")
	}
	return &Pipeline{
		diarizer:    cfg.Diarizer,
		transcriber: cfg.Transcriber,
		matcher:     cfg.Matcher,
	}, nil
}

// IdentifyOptions extends diarization options with a per-request
// similarity threshold. Threshold 0 means the matcher's default.
type IdentifyOptions struct {
	diarize.Options
	Threshold float32
}

// Result is a fully merged, attributed transcript.
type Result struct {
	Segments      []align.Segment `json:"segments"`
	Text          string          `json:"text"`
	Language      string          `json:"language,omitempty"`
	Duration      float64         `json:"duration"`
	NumSpeakers   int             `json:"num_speakers"`
	NumIdentified int             `json:"num_identified"`
}

// Diarize returns the raw anonymous speaker turns for a clip.
func (p *Pipeline) Diarize(ctx context.Context, clip diarize.Clip, opts diarize.Options) ([]diarize.Turn, error) {
	return p.diarizer.Diarize(ctx, clip, opts)
}

// DiarizeAndIdentify diarizes the clip and resolves each label against
// the speaker registry.
func (p *Pipeline) DiarizeAndIdentify(ctx context.Context, clip diarize.Clip, opts IdentifyOptions) ([]identify.IdentifiedTurn, error) {
	turns, err := p.diarizer.Diarize(ctx, clip, opts.Options)
	if err != nil {
		return nil, err
	}
	return p.matchTurns(ctx, clip, turns, opts.Threshold)
}

// TranscribeDiarized produces a diarized transcript without touching the
// registry: segments carry anonymous labels only.
func (p *Pipeline) TranscribeDiarized(ctx context.Context, clip diarize.Clip, opts diarize.Options, language string) (*Result, error) {
	turns, transcript, err := p.diarizeAndTranscribe(ctx, clip, opts, language)
	if err != nil {
		return nil, err
	}

	anon := make([]identify.IdentifiedTurn, len(turns))
	for i, t := range turns {
		anon[i] = identify.IdentifiedTurn{Turn: t}
	}
	return p.assemble(anon, transcript)
}

// TranscribeIdentified produces the full attributed transcript: diarized,
// matched against the registry, and aligned with the transcription.
func (p *Pipeline) TranscribeIdentified(ctx context.Context, clip diarize.Clip, opts IdentifyOptions, language string) (*Result, error) {
	turns, transcript, err := p.diarizeAndTranscribe(ctx, clip, opts.Options, language)
	if err != nil {
		return nil, err
	}

	identified, err := p.matchTurns(ctx, clip, turns, opts.Threshold)
	if err != nil {
		return nil, err
	}
	return p.assemble(identified, transcript)
}

func (p *Pipeline) matchTurns(ctx context.Context, clip diarize.Clip, turns []diarize.Turn, threshold float32) ([]identify.IdentifiedTurn, error) {
	if threshold == 0 {
		threshold = p.matcher.Threshold()
	}
	return p.matcher.MatchTurnsThreshold(ctx, clip, turns, threshold)
}

// diarizeAndTranscribe runs both collaborators concurrently and joins
// before returning. Either failure fails the call.
func (p *Pipeline) diarizeAndTranscribe(ctx context.Context, clip diarize.Clip, opts diarize.Options, language string) ([]diarize.Turn, *transcribe.Transcript, error) {
	if p.transcriber == nil {
		return nil, nil, fmt.Errorf("%w: no transcriber configured", transcribe.ErrUnavailable)
	}

	var (
		wg         sync.WaitGroup
		turns      []diarize.Turn
		diarizeErr error
		transcript *transcribe.Transcript
		transErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		turns, diarizeErr = p.diarizer.Diarize(ctx, clip, opts)
	}()
	go func() {
		defer wg.Done()
		transcript, transErr = p.transcriber.Transcribe(ctx, clip, language)
	}()
	wg.Wait()

	if diarizeErr != nil {
		return nil, nil, diarizeErr
	}
	if transErr != nil {
		return nil, nil, transErr
	}
	return turns, transcript, nil
}

// assemble merges turns and transcript into the final result.
func (p *Pipeline) assemble(turns []identify.IdentifiedTurn, transcript *transcribe.Transcript) (*Result, error) {
	segments, err := align.Merge(turns, transcript.Spans)
	if err != nil {
		return nil, err
	}

	labels := make(map[string]bool)
	identified := make(map[string]bool)
	for _, t := range turns {
		labels[t.Label] = true
		if t.IdentifiedAs != nil {
			identified[t.Label] = true
		}
	}

	return &Result{
		Segments:      segments,
		Text:          transcript.Text,
		Language:      transcript.Language,
		Duration:      transcript.Duration,
		NumSpeakers:   len(labels),
		NumIdentified: len(identified),
	}, nil
}
