package httpapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/kengbailey/transcription-diarization-service/pkg/pipeline"
)

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service": "transcription-diarization-service",
		"formats": supportedFormats(),
		"endpoints": []string{
			"POST /diarize",
			"POST /identify",
			"POST /transcribe-diarized",
			"POST /transcribe-identified",
			"POST /speakers/register",
			"GET /speakers",
			"GET /speakers/{id}",
			"DELETE /speakers/{id}",
			"POST /speakers/{id}/samples",
			"GET /ws/identify",
			"GET /stats",
			"GET /health",
		},
	})
}

func supportedFormats() []string {
	out := make([]string, 0, len(allowedExts))
	for ext := range allowedExts {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	registryOK := true
	if _, err := s.db.Stats(r.Context()); err != nil {
		registryOK = false
	}
	diarizerOK := s.diarizer != nil && s.diarizer.Healthy(r.Context())

	status := "ok"
	code := http.StatusOK
	if !registryOK || !diarizerOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{
		"status":   status,
		"diarizer": diarizerOK,
		"registry": registryOK,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDiarize(w http.ResponseWriter, r *http.Request) {
	clip, err := s.readClip(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := diarizeOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	turns, err := s.pipeline.Diarize(r.Context(), clip, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	labels := make(map[string]bool)
	for _, t := range turns {
		labels[t.Label] = true
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"turns":        turns,
		"num_speakers": len(labels),
	})
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	clip, err := s.readClip(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := identifyOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	turns, err := s.pipeline.DiarizeAndIdentify(r.Context(), clip, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	labels := make(map[string]bool)
	identified := make(map[string]bool)
	for _, t := range turns {
		labels[t.Label] = true
		if t.IdentifiedAs != nil {
			identified[t.Label] = true
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"turns":          turns,
		"num_speakers":   len(labels),
		"num_identified": len(identified),
	})
}

func identifyOptions(r *http.Request) (pipeline.IdentifyOptions, error) {
	var opts pipeline.IdentifyOptions
	var err error
	if opts.Options, err = diarizeOptions(r); err != nil {
		return opts, err
	}
	if opts.Threshold, err = formThreshold(r); err != nil {
		return opts, err
	}
	return opts, nil
}

func (s *Server) handleTranscribeDiarized(w http.ResponseWriter, r *http.Request) {
	clip, err := s.readClip(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := diarizeOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.pipeline.TranscribeDiarized(r.Context(), clip, opts, r.FormValue("language"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTranscribeIdentified(w http.ResponseWriter, r *http.Request) {
	clip, err := s.readClip(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := identifyOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.pipeline.TranscribeIdentified(r.Context(), clip, opts, r.FormValue("language"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	clip, err := s.readClip(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name := strings.TrimSpace(r.FormValue("speaker_name"))
	if name == "" {
		s.writeError(w, r, badRequestf("speaker_name is required"))
		return
	}

	id, err := s.enroll.Register(r.Context(), name, clip)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, id)
}

func (s *Server) handleListSpeakers(w http.ResponseWriter, r *http.Request) {
	ids, err := s.db.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"speakers": ids,
		"count":    len(ids),
	})
}

func (s *Server) handleGetSpeaker(w http.ResponseWriter, r *http.Request) {
	id, err := s.db.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, id)
}

func (s *Server) handleDeleteSpeaker(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := s.db.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"deleted":             id,
		"voiceprints_removed": n,
	})
}

func (s *Server) handleAddSample(w http.ResponseWriter, r *http.Request) {
	clip, err := s.readClip(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := s.enroll.AddSample(r.Context(), r.PathValue("id"), clip)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, id)
}
