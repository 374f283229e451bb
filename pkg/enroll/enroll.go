// Package enroll turns raw audio samples into registry entries.
//
// Enrollment embeds the whole clip and persists the identity together
// with its first voiceprint in one registry transaction, so a speaker is
// never registered without a usable voiceprint. The raw clip can
// optionally be archived to a sample store; archival is best-effort and
// never fails the enrollment.
package enroll

import (
	"context"
	"log/slog"

	"github.com/kengbailey/transcription-diarization-service/pkg/diarize"
	"github.com/kengbailey/transcription-diarization-service/pkg/samplestore"
	"github.com/kengbailey/transcription-diarization-service/pkg/speakerdb"
)

// Manager enrolls speakers into the registry.
type Manager struct {
	db       *speakerdb.DB
	embedder diarize.Embedder
	samples  samplestore.Store
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithSampleStore enables raw-clip archival after successful enrollment.
func WithSampleStore(s samplestore.Store) Option {
	return func(m *Manager) { m.samples = s }
}

// WithLogger sets the logger for best-effort failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates an enrollment manager over the registry and embedder.
func NewManager(db *speakerdb.DB, embedder diarize.Embedder, opts ...Option) *Manager {
	m := &Manager{
		db:       db,
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Register enrolls a new speaker from one audio sample. The clip is
// embedded first; only a successful embedding reaches the registry, so a
// failed or cancelled enrollment leaves no partial identity behind.
func (m *Manager) Register(ctx context.Context, name string, clip diarize.Clip) (speakerdb.Identity, error) {
	vec, err := m.embedder.EmbedClip(ctx, clip)
	if err != nil {
		return speakerdb.Identity{}, err
	}

	id, err := m.db.Create(ctx, name, vec, clip.Name)
	if err != nil {
		return speakerdb.Identity{}, err
	}

	m.archive(ctx, id, clip)
	return id, nil
}

// AddSample appends an additional voiceprint to an existing speaker.
// The identity is checked before the embedding call, so an unknown ID
// fails fast with [speakerdb.ErrNotFound].
func (m *Manager) AddSample(ctx context.Context, id string, clip diarize.Clip) (speakerdb.Identity, error) {
	if _, err := m.db.Get(ctx, id); err != nil {
		return speakerdb.Identity{}, err
	}

	vec, err := m.embedder.EmbedClip(ctx, clip)
	if err != nil {
		return speakerdb.Identity{}, err
	}

	updated, err := m.db.AddVoiceprint(ctx, id, vec, clip.Name)
	if err != nil {
		return speakerdb.Identity{}, err
	}

	m.archive(ctx, updated, clip)
	return updated, nil
}

// archive stores the raw clip under the voiceprint that was just written.
// Failures are logged only: the registry write already succeeded.
func (m *Manager) archive(ctx context.Context, id speakerdb.Identity, clip diarize.Clip) {
	if m.samples == nil {
		return
	}
	key := samplestore.SampleKey(id.ID, id.Samples-1, clip.Name)
	if err := m.samples.Put(ctx, key, clip.Data); err != nil {
		m.logger.Warn("sample archival failed",
			"speaker_id", id.ID,
			"key", key,
			"error", err)
	}
}
