package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/kengbailey/transcription-diarization-service/pkg/diarize"
	"github.com/kengbailey/transcription-diarization-service/pkg/pipeline"
)

// wsUpgrader accepts any origin: deployments front this service with
// their own gateway, and the endpoint carries no cookies or credentials.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  32 << 10,
	WriteBufferSize: 32 << 10,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsClientEvent is a text frame from the client. Binary frames carry
// audio; the "end" event closes the clip and starts identification.
type wsClientEvent struct {
	Event       string  `json:"event"`
	Filename    string  `json:"filename,omitempty"`
	NumSpeakers int     `json:"num_speakers,omitempty"`
	MinSpeakers int     `json:"min_speakers,omitempty"`
	MaxSpeakers int     `json:"max_speakers,omitempty"`
	Threshold   float32 `json:"similarity_threshold,omitempty"`
}

// handleWSIdentify streams identification over a websocket.
//
// Protocol: the client sends any number of binary audio frames, then a
// text frame {"event":"end", ...} with optional diarization parameters.
// The server answers with one {"event":"turn"} frame per identified
// turn, then {"event":"done"} with summary counts. Failures produce a
// single {"event":"error"} frame and close the connection.
func (s *Server) handleWSIdentify(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	var audio bytes.Buffer
	var end wsClientEvent
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return // client went away
		}
		if msgType == websocket.BinaryMessage {
			if int64(audio.Len()+len(data)) > s.maxUpload {
				s.wsError(conn, "upload_too_large", "audio stream exceeds upload limit")
				return
			}
			audio.Write(data)
			continue
		}

		var ev wsClientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.wsError(conn, "invalid_request", "malformed control frame")
			return
		}
		if ev.Event == "end" {
			end = ev
			break
		}
		// Unknown events are ignored so the protocol can grow.
	}

	if audio.Len() == 0 {
		s.wsError(conn, "invalid_request", "no audio received")
		return
	}

	clip := diarize.Clip{Data: audio.Bytes(), Name: end.Filename}
	opts := pipeline.IdentifyOptions{
		Options: diarize.Options{
			NumSpeakers: end.NumSpeakers,
			MinSpeakers: end.MinSpeakers,
			MaxSpeakers: end.MaxSpeakers,
		},
		Threshold: end.Threshold,
	}

	turns, err := s.pipeline.DiarizeAndIdentify(r.Context(), clip, opts)
	if err != nil {
		s.wsError(conn, "identification_failed", err.Error())
		return
	}

	identified := make(map[string]bool)
	labels := make(map[string]bool)
	for _, t := range turns {
		labels[t.Label] = true
		if t.IdentifiedAs != nil {
			identified[t.Label] = true
		}
		if err := conn.WriteJSON(map[string]any{
			"event":         "turn",
			"speaker":       t.Label,
			"start":         t.Start,
			"end":           t.End,
			"identified_as": t.IdentifiedAs,
		}); err != nil {
			return
		}
	}

	_ = conn.WriteJSON(map[string]any{
		"event":          "done",
		"num_turns":      len(turns),
		"num_speakers":   len(labels),
		"num_identified": len(identified),
	})
}

func (s *Server) wsError(conn *websocket.Conn, label, message string) {
	_ = conn.WriteJSON(map[string]any{
		"event":   "error",
		"error":   label,
		"message": message,
	})
}
