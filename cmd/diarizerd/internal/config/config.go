// Package config loads the diarizerd configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config is the diarizerd.yaml schema.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// MaxUploadBytes caps multipart upload size.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// SimilarityThreshold is the default cosine similarity for accepting
	// a registry match.
	SimilarityThreshold float32 `yaml:"similarity_threshold"`

	Registry Registry `yaml:"registry"`
	Diarizer Diarizer `yaml:"diarizer"`
	Whisper  Whisper  `yaml:"whisper"`
	Samples  Samples  `yaml:"samples"`
}

// Registry configures the speaker registry store.
type Registry struct {
	// Dir is the badger data directory.
	Dir string `yaml:"dir"`

	// Dimension is the voiceprint vector dimension. It must match the
	// embedding model served by the diarizer sidecar.
	Dimension int `yaml:"dimension"`
}

// Diarizer points at the model sidecar.
type Diarizer struct {
	URL string `yaml:"url"`
}

// Whisper configures the optional transcription backend. Empty APIKey
// disables transcription endpoints.
type Whisper struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Samples configures optional raw-sample archival. Dir selects the local
// backend; S3 selects the object-store backend. Both empty disables
// archival.
type Samples struct {
	Dir string    `yaml:"dir"`
	S3  S3Samples `yaml:"s3"`
}

// S3Samples configures the S3 archival backend.
type S3Samples struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:              ":8080",
		MaxUploadBytes:      500 << 20,
		SimilarityThreshold: 0.7,
		Registry: Registry{
			Dir:       "data/registry",
			Dimension: 256,
		},
		Diarizer: Diarizer{
			URL: "http://localhost:9000",
		},
	}
}

// Load reads path and merges it over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen must not be empty")
	}
	if c.Registry.Dimension <= 0 {
		return fmt.Errorf("config: registry.dimension must be positive")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("config: similarity_threshold must be in (0, 1]")
	}
	if c.Diarizer.URL == "" {
		return fmt.Errorf("config: diarizer.url is required")
	}
	if c.Samples.Dir != "" && c.Samples.S3.Bucket != "" {
		return fmt.Errorf("config: samples.dir and samples.s3 are mutually exclusive")
	}
	return nil
}
