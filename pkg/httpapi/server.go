// Package httpapi exposes the pipeline and registry over HTTP.
//
// Audio arrives as multipart uploads, results leave as JSON. Errors use
// a uniform {error, message} envelope with semantic status codes: 400
// for bad input, 404 for unknown speakers, 422 when a model could not
// extract anything from an otherwise valid upload, 503 when a model
// backend is down. Handlers never call the models directly; everything
// goes through the pipeline so the transport stays a thin shell.
package httpapi

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/kengbailey/transcription-diarization-service/pkg/enroll"
	"github.com/kengbailey/transcription-diarization-service/pkg/pipeline"
	"github.com/kengbailey/transcription-diarization-service/pkg/speakerdb"
)

// DefaultMaxUpload caps upload size when Config.MaxUploadBytes is unset.
const DefaultMaxUpload = 500 << 20 // 500 MiB

// allowedExts are the upload extensions the model backends accept.
var allowedExts = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".webm": true,
}

// HealthChecker reports whether a model backend is reachable.
// Implemented by the diarizer sidecar client.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Config wires a Server.
type Config struct {
	Pipeline *pipeline.Pipeline
	DB       *speakerdb.DB
	Enroll   *enroll.Manager

	// Diarizer is used for health reporting only. Optional.
	Diarizer HealthChecker

	// MaxUploadBytes caps multipart upload size. 0 means DefaultMaxUpload.
	MaxUploadBytes int64

	Logger *slog.Logger
}

// Server is the HTTP front end. It implements http.Handler.
type Server struct {
	pipeline  *pipeline.Pipeline
	db        *speakerdb.DB
	enroll    *enroll.Manager
	diarizer  HealthChecker
	maxUpload int64
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewServer builds the server and its route table.
func NewServer(cfg Config) *Server {
	s := &Server{
		pipeline:  cfg.Pipeline,
		db:        cfg.DB,
		enroll:    cfg.Enroll,
		diarizer:  cfg.Diarizer,
		maxUpload: cfg.MaxUploadBytes,
		logger:    cfg.Logger,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUpload
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleInfo)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)

	mux.HandleFunc("POST /diarize", s.handleDiarize)
	mux.HandleFunc("POST /identify", s.handleIdentify)
	mux.HandleFunc("POST /transcribe-diarized", s.handleTranscribeDiarized)
	mux.HandleFunc("POST /transcribe-identified", s.handleTranscribeIdentified)

	mux.HandleFunc("POST /speakers/register", s.handleRegister)
	mux.HandleFunc("GET /speakers", s.handleListSpeakers)
	mux.HandleFunc("GET /speakers/{id}", s.handleGetSpeaker)
	mux.HandleFunc("DELETE /speakers/{id}", s.handleDeleteSpeaker)
	mux.HandleFunc("POST /speakers/{id}/samples", s.handleAddSample)

	mux.HandleFunc("GET /ws/identify", s.handleWSIdentify)

	s.mux = mux
	return s
}

// ServeHTTP dispatches to the route table with request logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(sw, r)
	s.logger.Info("request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", sw.status,
		"duration", time.Since(start))
}

// statusWriter captures the response status for the request log.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(p)
}

// Hijack lets the websocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("httpapi: connection does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	w.written = true
	return h.Hijack()
}
