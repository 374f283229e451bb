// Package pyannote is the HTTP client for the diarization model sidecar.
//
// The sidecar wraps the pyannote diarization and embedding models behind
// a small JSON API (POST /diarize, POST /embed, audio as base64). It
// loads models lazily, so a 503 means "still loading or down" and maps
// to [diarize.ErrUnavailable], while a 422 means the model ran but could
// not produce output for this clip and maps to [diarize.ErrExtraction].
package pyannote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kengbailey/transcription-diarization-service/pkg/diarize"
)

// DefaultDimension is the embedding dimension of the sidecar's default
// speaker model.
const DefaultDimension = 256

// Client talks to one sidecar instance. Safe for concurrent use.
type Client struct {
	base string
	http *http.Client
	dim  int
}

var (
	_ diarize.Diarizer = (*Client)(nil)
	_ diarize.Embedder = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithDimension overrides the expected embedding dimension for sidecars
// running a non-default speaker model.
func WithDimension(dim int) Option {
	return func(cl *Client) { cl.dim = dim }
}

// NewClient creates a sidecar client for the given base URL,
// e.g. "http://diarizer:9000".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: http.DefaultClient,
		dim:  DefaultDimension,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Dimension returns the embedding dimension the sidecar produces.
func (c *Client) Dimension() int {
	return c.dim
}

type diarizeRequest struct {
	Audio       []byte `json:"audio"` // base64 via encoding/json
	Filename    string `json:"filename,omitempty"`
	NumSpeakers int    `json:"num_speakers,omitempty"`
	MinSpeakers int    `json:"min_speakers,omitempty"`
	MaxSpeakers int    `json:"max_speakers,omitempty"`
	Exclusive   bool   `json:"exclusive,omitempty"`
}

type diarizeResponse struct {
	Turns []diarize.Turn `json:"turns"`
}

// Diarize splits the clip into speaker turns.
func (c *Client) Diarize(ctx context.Context, clip diarize.Clip, opts diarize.Options) ([]diarize.Turn, error) {
	req := diarizeRequest{
		Audio:       clip.Data,
		Filename:    clip.Name,
		NumSpeakers: opts.NumSpeakers,
		MinSpeakers: opts.MinSpeakers,
		MaxSpeakers: opts.MaxSpeakers,
		Exclusive:   opts.Exclusive,
	}
	var resp diarizeResponse
	if err := c.post(ctx, "/diarize", req, &resp); err != nil {
		return nil, err
	}
	for i, t := range resp.Turns {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("pyannote: turn %d: %w", i, err)
		}
	}
	return resp.Turns, nil
}

type embedRequest struct {
	Audio []byte   `json:"audio"`
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed extracts a voiceprint for the [start, end) window of the clip.
func (c *Client) Embed(ctx context.Context, clip diarize.Clip, start, end float64) ([]float32, error) {
	return c.embed(ctx, embedRequest{Audio: clip.Data, Start: &start, End: &end})
}

// EmbedClip extracts a voiceprint for the whole clip.
func (c *Client) EmbedClip(ctx context.Context, clip diarize.Clip) ([]float32, error) {
	return c.embed(ctx, embedRequest{Audio: clip.Data})
}

func (c *Client) embed(ctx context.Context, req embedRequest) ([]float32, error) {
	var resp embedResponse
	if err := c.post(ctx, "/embed", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) != c.dim {
		return nil, fmt.Errorf("pyannote: embedding dimension %d, want %d", len(resp.Embedding), c.dim)
	}
	return resp.Embedding, nil
}

// Healthy reports whether the sidecar answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// post sends a JSON request and decodes the JSON response, mapping the
// sidecar's status codes onto the collaborator error contract.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", diarize.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) statusError(resp *http.Response) error {
	detail := readDetail(resp.Body)
	switch resp.StatusCode {
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", diarize.ErrUnavailable, detail)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", diarize.ErrExtraction, detail)
	default:
		return fmt.Errorf("pyannote: unexpected status %d: %s", resp.StatusCode, detail)
	}
}

// readDetail extracts the error detail from the sidecar's JSON error
// body, falling back to the raw body.
func readDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no detail"
	}
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return strings.TrimSpace(string(raw))
}
