package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/kengbailey/transcription-diarization-service/cmd/diarizerd/internal/config"
	"github.com/kengbailey/transcription-diarization-service/pkg/enroll"
	"github.com/kengbailey/transcription-diarization-service/pkg/httpapi"
	"github.com/kengbailey/transcription-diarization-service/pkg/identify"
	"github.com/kengbailey/transcription-diarization-service/pkg/pipeline"
	"github.com/kengbailey/transcription-diarization-service/pkg/pyannote"
	"github.com/kengbailey/transcription-diarization-service/pkg/samplestore"
	"github.com/kengbailey/transcription-diarization-service/pkg/speakerdb"
	"github.com/kengbailey/transcription-diarization-service/pkg/transcribe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	db, err := speakerdb.Open(speakerdb.Options{
		Dir:       cfg.Registry.Dir,
		Dimension: cfg.Registry.Dimension,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	sidecar := pyannote.NewClient(cfg.Diarizer.URL,
		pyannote.WithDimension(cfg.Registry.Dimension))

	var transcriber transcribe.Transcriber
	if cfg.Whisper.APIKey != "" {
		var opts []transcribe.WhisperOption
		if cfg.Whisper.BaseURL != "" {
			opts = append(opts, transcribe.WithBaseURL(cfg.Whisper.BaseURL))
		}
		if cfg.Whisper.Model != "" {
			opts = append(opts, transcribe.WithModel(cfg.Whisper.Model))
		}
		transcriber = transcribe.NewWhisper(cfg.Whisper.APIKey, opts...)
	} else {
		logger.Warn("no whisper api key configured, transcription endpoints disabled")
	}

	samples, err := newSampleStore(cfg.Samples)
	if err != nil {
		return err
	}

	matcher := identify.NewMatcher(db, sidecar,
		identify.WithThreshold(cfg.SimilarityThreshold),
		identify.WithLogger(logger))

	var enrollOpts []enroll.Option
	if samples != nil {
		enrollOpts = append(enrollOpts, enroll.WithSampleStore(samples))
	}
	enrollOpts = append(enrollOpts, enroll.WithLogger(logger))

	p, err := pipeline.New(pipeline.Config{
		Diarizer:    sidecar,
		Transcriber: transcriber,
		Matcher:     matcher,
	})
	if err != nil {
		return err
	}

	handler := httpapi.NewServer(httpapi.Config{
		Pipeline:       p,
		DB:             db,
		Enroll:         enroll.NewManager(db, sidecar, enrollOpts...),
		Diarizer:       sidecar,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen, "dimension", cfg.Registry.Dimension)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newSampleStore builds the configured archival backend, or nil when
// archival is disabled.
func newSampleStore(cfg config.Samples) (samplestore.Store, error) {
	switch {
	case cfg.Dir != "":
		return samplestore.NewLocal(cfg.Dir)
	case cfg.S3.Bucket != "":
		opts := s3.Options{Region: cfg.S3.Region}
		if cfg.S3.Endpoint != "" {
			opts.BaseEndpoint = aws.String(cfg.S3.Endpoint)
			opts.UsePathStyle = true
		}
		if cfg.S3.AccessKey != "" {
			ak, sk := cfg.S3.AccessKey, cfg.S3.SecretKey
			opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{AccessKeyID: ak, SecretAccessKey: sk}, nil
			})
		}
		return samplestore.NewS3(s3.New(opts), cfg.S3.Bucket, cfg.S3.Prefix), nil
	default:
		return nil, nil
	}
}
