package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/AaronLay10/SentientTimeline/internal/execsync"
	"github.com/AaronLay10/SentientTimeline/internal/mqtt"
)

func (s *Server) executionListHandler(w http.ResponseWriter, r *http.Request) {
	if s.Projector == nil {
		notConfigured(w, "execution state")
		return
	}
	snaps := s.Projector.Snapshots()
	if snaps == nil {
		snaps = []execsync.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) executionHandler(w http.ResponseWriter, r *http.Request) {
	if s.Projector == nil {
		notConfigured(w, "execution state")
		return
	}
	snap, ok := s.Projector.Snapshot(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no execution state for "+r.PathValue("id"))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// CommandRequest asks the executor to start or reset a scene or puzzle.
type CommandRequest struct {
	Target mqtt.Target `json:"target"`
	Verb   mqtt.Verb   `json:"command"`
	ID     string      `json:"id"`
}

// CommandResponse echoes the command as published.
type CommandResponse struct {
	OK      bool          `json:"ok"`
	Error   string        `json:"error,omitempty"`
	Command *mqtt.Command `json:"command,omitempty"`
}

func (s *Server) commandHandler(w http.ResponseWriter, r *http.Request) {
	if s.Commands == nil {
		notConfigured(w, "executor commands")
		return
	}
	var req CommandRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "missing 'id' field")
		return
	}
	switch req.Target {
	case mqtt.TargetScene, mqtt.TargetPuzzle:
	default:
		writeError(w, http.StatusBadRequest, "target must be scene or puzzle")
		return
	}
	switch req.Verb {
	case mqtt.VerbStart, mqtt.VerbReset:
	default:
		writeError(w, http.StatusBadRequest, "command must be start or reset")
		return
	}

	cmd, err := s.Commands.Send(req.Target, req.Verb, req.ID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{OK: true, Command: cmd})
}

// PublishRequest sends a raw payload to a device topic.
type PublishRequest struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) publishHandler(w http.ResponseWriter, r *http.Request) {
	if s.Commands == nil {
		notConfigured(w, "executor commands")
		return
	}
	var req PublishRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "missing 'topic' field")
		return
	}
	if err := s.Commands.PublishRaw(req.Topic, req.Payload); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, mqtt.ErrWildcardTopic) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ErrorResponse{OK: true})
}
