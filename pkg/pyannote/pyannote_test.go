package pyannote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kengbailey/transcription-diarization-service/pkg/diarize"
)

func TestDiarize(t *testing.T) {
	var gotReq diarizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/diarize" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Error(err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"turns": []map[string]any{
				{"speaker": "SPEAKER_00", "start": 0.0, "end": 4.2},
				{"speaker": "SPEAKER_01", "start": 4.2, "end": 9.0},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	turns, err := c.Diarize(context.Background(),
		diarize.Clip{Data: []byte("RIFF"), Name: "call.wav"},
		diarize.Options{MinSpeakers: 1, MaxSpeakers: 4})
	if err != nil {
		t.Fatal(err)
	}

	if string(gotReq.Audio) != "RIFF" {
		t.Errorf("audio round-trip = %q", gotReq.Audio)
	}
	if gotReq.Filename != "call.wav" || gotReq.MinSpeakers != 1 || gotReq.MaxSpeakers != 4 {
		t.Errorf("request = %+v", gotReq)
	}

	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	want := diarize.Turn{Label: "SPEAKER_00", Start: 0, End: 4.2}
	if turns[0] != want {
		t.Errorf("turns[0] = %+v, want %+v", turns[0], want)
	}
}

func TestDiarizeRejectsMalformedTurns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"turns": []map[string]any{
				{"speaker": "SPEAKER_00", "start": 5.0, "end": 2.0},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Diarize(context.Background(), diarize.Clip{Data: []byte("x")}, diarize.Options{}); err == nil {
		t.Error("inverted turn accepted")
	}
}

func TestEmbed(t *testing.T) {
	var gotReq embedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Error(err)
		}
		vec := make([]float32, 4)
		vec[0] = 1
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithDimension(4))
	vec, err := c.Embed(context.Background(), diarize.Clip{Data: []byte("RIFF")}, 1.5, 3.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 4 || vec[0] != 1 {
		t.Errorf("vec = %v", vec)
	}
	if gotReq.Start == nil || *gotReq.Start != 1.5 || gotReq.End == nil || *gotReq.End != 3.5 {
		t.Errorf("span = %+v", gotReq)
	}
}

func TestEmbedClipOmitsSpan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}
		if _, ok := req["start"]; ok {
			t.Error("whole-clip embed sent a start bound")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": make([]float32, 4)})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithDimension(4))
	if _, err := c.EmbedClip(context.Background(), diarize.Clip{Data: []byte("RIFF")}); err != nil {
		t.Fatal(err)
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": make([]float32, 7)})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithDimension(4))
	if _, err := c.EmbedClip(context.Background(), diarize.Clip{Data: []byte("x")}); err == nil {
		t.Error("wrong-dimension embedding accepted")
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		detail  string
		wantErr error
	}{
		{"loading", http.StatusServiceUnavailable, "model loading", diarize.ErrUnavailable},
		{"silence", http.StatusUnprocessableEntity, "no speech detected", diarize.ErrExtraction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]string{"detail": tt.detail})
			}))
			defer srv.Close()

			c := NewClient(srv.URL, WithDimension(4))
			_, err := c.Diarize(context.Background(), diarize.Clip{Data: []byte("x")}, diarize.Options{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConnectionRefusedIsUnavailable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1") // nothing listens there
	_, err := c.Diarize(context.Background(), diarize.Clip{Data: []byte("x")}, diarize.Options{})
	if !errors.Is(err, diarize.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if !NewClient(srv.URL).Healthy(context.Background()) {
		t.Error("Healthy = false for a live sidecar")
	}
	srv.Close()
	if NewClient(srv.URL).Healthy(context.Background()) {
		t.Error("Healthy = true for a closed sidecar")
	}
}
