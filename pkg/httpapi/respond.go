package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kengbailey/transcription-diarization-service/pkg/diarize"
	"github.com/kengbailey/transcription-diarization-service/pkg/speakerdb"
	"github.com/kengbailey/transcription-diarization-service/pkg/transcribe"
)

// errBadRequest marks client-side input errors for status mapping.
var errBadRequest = errors.New("bad request")

func badRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errBadRequest}, args...)...)
}

// errorBody is the uniform error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		label  = "internal_error"
	)
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		status, label = http.StatusRequestEntityTooLarge, "upload_too_large"
	case errors.Is(err, errBadRequest):
		status, label = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, speakerdb.ErrNotFound):
		status, label = http.StatusNotFound, "speaker_not_found"
	case errors.Is(err, diarize.ErrExtraction), errors.Is(err, transcribe.ErrInvalidSpan):
		status, label = http.StatusUnprocessableEntity, "extraction_failed"
	case errors.Is(err, diarize.ErrUnavailable), errors.Is(err, transcribe.ErrUnavailable):
		status, label = http.StatusServiceUnavailable, "model_unavailable"
	}

	if status >= 500 {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, errorBody{Error: label, Message: err.Error()})
}

// readClip reads the uploaded audio file from a multipart form, enforcing
// the size cap and the supported-extension list.
func (s *Server) readClip(w http.ResponseWriter, r *http.Request) (diarize.Clip, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return diarize.Clip{}, err
		}
		return diarize.Clip{}, badRequestf("parse multipart form: %v", err)
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		return diarize.Clip{}, badRequestf("missing file field")
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	if !allowedExts[ext] {
		return diarize.Clip{}, badRequestf("unsupported audio format %q", ext)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return diarize.Clip{}, err
	}
	if len(data) == 0 {
		return diarize.Clip{}, badRequestf("empty upload")
	}
	return diarize.Clip{Data: data, Name: hdr.Filename}, nil
}

// diarizeOptions parses the optional speaker-count bounds from the form.
func diarizeOptions(r *http.Request) (diarize.Options, error) {
	var opts diarize.Options
	var err error
	if opts.NumSpeakers, err = formInt(r, "num_speakers"); err != nil {
		return opts, err
	}
	if opts.MinSpeakers, err = formInt(r, "min_speakers"); err != nil {
		return opts, err
	}
	if opts.MaxSpeakers, err = formInt(r, "max_speakers"); err != nil {
		return opts, err
	}
	if v := r.FormValue("exclusive"); v != "" {
		opts.Exclusive, err = strconv.ParseBool(v)
		if err != nil {
			return opts, badRequestf("exclusive: %v", err)
		}
	}
	if opts.MinSpeakers > opts.MaxSpeakers && opts.MaxSpeakers != 0 {
		return opts, badRequestf("min_speakers %d > max_speakers %d", opts.MinSpeakers, opts.MaxSpeakers)
	}
	return opts, nil
}

func formInt(r *http.Request, field string) (int, error) {
	v := r.FormValue(field)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequestf("%s: %v", field, err)
	}
	if n < 0 {
		return 0, badRequestf("%s must be non-negative", field)
	}
	return n, nil
}

// formThreshold parses the optional similarity_threshold override.
// 0 means "use the service default".
func formThreshold(r *http.Request) (float32, error) {
	v := r.FormValue("similarity_threshold")
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, badRequestf("similarity_threshold: %v", err)
	}
	if f <= 0 || f > 1 {
		return 0, badRequestf("similarity_threshold must be in (0, 1]")
	}
	return float32(f), nil
}
