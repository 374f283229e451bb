package httpapi

import (
	"context"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/kengbailey/transcription-diarization-service/pkg/diarize"
)

func dialWS(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws/identify"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWSIdentify(t *testing.T) {
	env := newTestEnv(t, &fakeDiarizer{turns: []diarize.Turn{
		{Label: "SPEAKER_00", Start: 0, End: 5},
		{Label: "SPEAKER_01", Start: 5, End: 9},
	}}, nil)
	if _, err := env.db.Create(context.Background(), "alice", []float32{1, 0, 0, 0}, ""); err != nil {
		t.Fatal(err)
	}

	conn := dialWS(t, env.srv.URL)

	// Stream the clip in two chunks, then end.
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("RIFF")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("more audio")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(map[string]any{"event": "end", "filename": "call.wav"}); err != nil {
		t.Fatal(err)
	}

	var events []map[string]any
	for {
		var ev map[string]any
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatal(err)
		}
		events = append(events, ev)
		if ev["event"] == "done" || ev["event"] == "error" {
			break
		}
	}

	if len(events) != 3 {
		t.Fatalf("events = %d, want 2 turns + done: %v", len(events), events)
	}
	if events[0]["event"] != "turn" || events[0]["speaker"] != "SPEAKER_00" {
		t.Errorf("event 0 = %v", events[0])
	}
	done := events[2]
	if done["event"] != "done" {
		t.Fatalf("last event = %v", done)
	}
	// JSON numbers decode as float64.
	if done["num_turns"].(float64) != 2 || done["num_speakers"].(float64) != 2 {
		t.Errorf("done = %v", done)
	}
	// The fixed embedder matches alice for both labels.
	if done["num_identified"].(float64) != 2 {
		t.Errorf("num_identified = %v, want 2", done["num_identified"])
	}
}

func TestWSIdentifyNoAudio(t *testing.T) {
	env := newTestEnv(t, &fakeDiarizer{}, nil)
	conn := dialWS(t, env.srv.URL)

	if err := conn.WriteJSON(map[string]any{"event": "end"}); err != nil {
		t.Fatal(err)
	}
	var ev map[string]any
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev["event"] != "error" || ev["error"] != "invalid_request" {
		t.Errorf("event = %v, want invalid_request error", ev)
	}
}

func TestWSIdentifyModelDown(t *testing.T) {
	env := newTestEnv(t, &fakeDiarizer{err: diarize.ErrUnavailable}, nil)
	conn := dialWS(t, env.srv.URL)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("RIFF")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(map[string]any{"event": "end"}); err != nil {
		t.Fatal(err)
	}
	var ev map[string]any
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev["event"] != "error" || ev["error"] != "identification_failed" {
		t.Errorf("event = %v, want identification_failed", ev)
	}
}
