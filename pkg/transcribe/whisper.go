package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kengbailey/transcription-diarization-service/pkg/diarize"
)

const whisperDefaultModel = "whisper-1"

// Whisper implements [Transcriber] using the OpenAI audio transcription
// API.
//
// This also works with any OpenAI-compatible server (faster-whisper-server,
// speaches, LocalAI, ...) by setting WithBaseURL, which is how the service
// is typically deployed: a local Whisper server handles speech-to-text
// while diarization runs against the model sidecar.
type Whisper struct {
	client *openai.Client
	model  string
}

var _ Transcriber = (*Whisper)(nil)

// WhisperOption configures a Whisper transcriber.
type WhisperOption func(*whisperConfig)

type whisperConfig struct {
	model      string
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// WithModel sets the transcription model name (default "whisper-1").
func WithModel(model string) WhisperOption {
	return func(c *whisperConfig) { c.model = model }
}

// WithBaseURL overrides the API base URL, e.g. "http://whisper:8000/v1".
func WithBaseURL(url string) WhisperOption {
	return func(c *whisperConfig) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) WhisperOption {
	return func(c *whisperConfig) { c.httpClient = client }
}

// WithMaxRetries sets how many times transient API failures are retried.
func WithMaxRetries(n int) WhisperOption {
	return func(c *whisperConfig) { c.maxRetries = n }
}

// NewWhisper creates a Whisper transcriber.
//
// Local OpenAI-compatible servers usually accept any non-empty apiKey.
func NewWhisper(apiKey string, opts ...WhisperOption) *Whisper {
	cfg := whisperConfig{
		model:      whisperDefaultModel,
		httpClient: http.DefaultClient,
		maxRetries: 2,
	}
	for _, o := range opts {
		o(&cfg)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &Whisper{
		client: &client,
		model:  cfg.model,
	}
}

// Model returns the configured model name.
func (w *Whisper) Model() string {
	return w.model
}

// verboseTranscription mirrors the verbose_json response shape, which
// carries the segment timestamps the typed SDK response omits.
type verboseTranscription struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe transcribes the whole clip, requesting verbose JSON so that
// segment-level timestamps are available for alignment.
func (w *Whisper) Transcribe(ctx context.Context, clip diarize.Clip, language string) (*Transcript, error) {
	if len(clip.Data) == 0 {
		return nil, fmt.Errorf("%w: empty clip", ErrInvalidSpan)
	}

	name := clip.Name
	if name == "" {
		name = "audio.wav"
	}

	params := openai.AudioTranscriptionNewParams{
		File:                   openai.File(bytes.NewReader(clip.Data), name, "application/octet-stream"),
		Model:                  openai.AudioModel(w.model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
	}
	if language != "" {
		params.Language = openai.String(language)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// The typed response only carries the text; segment timestamps live
	// in the raw verbose_json payload.
	var verbose verboseTranscription
	if err := json.Unmarshal([]byte(resp.RawJSON()), &verbose); err != nil {
		return nil, fmt.Errorf("transcribe: decode verbose response: %w", err)
	}

	out := &Transcript{
		Text:     strings.TrimSpace(verbose.Text),
		Language: verbose.Language,
		Duration: verbose.Duration,
	}
	for _, seg := range verbose.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.End <= seg.Start {
			continue // backends emit zero-length or empty filler segments
		}
		out.Spans = append(out.Spans, Span{Start: seg.Start, End: seg.End, Text: text})
	}
	if out.Text == "" && len(out.Spans) == 0 {
		// Distinct from unavailability: the backend answered but found
		// no speech in this clip.
		return nil, fmt.Errorf("%w: no speech found in clip", diarize.ErrExtraction)
	}
	return out, nil
}
