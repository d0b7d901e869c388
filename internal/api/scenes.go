package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/AaronLay10/SentientTimeline/internal/blocks"
	"github.com/AaronLay10/SentientTimeline/internal/diag"
	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/export"
	"github.com/AaronLay10/SentientTimeline/internal/reorder"
	"github.com/AaronLay10/SentientTimeline/internal/storage/postgres"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// maxBody caps request bodies; puzzle configs are the largest payload.
const maxBody = 4 << 20

// CompileResponse previews a compilation without writing anything.
type CompileResponse struct {
	OK                  bool             `json:"ok"`
	Timeline            []timeline.Entry `json:"timeline,omitempty"`
	Devices             []string         `json:"devices,omitempty"`
	EstimatedDurationMs int64            `json:"estimatedDurationMs,omitempty"`
	PuzzleFiles         []string         `json:"puzzleFiles,omitempty"`
	Diagnostics         diag.List        `json:"diagnostics"`
}

// compileHandler compiles a scene bundle posted in the export bundle
// format. Rejected steps answer 422 with every finding.
func (s *Server) compileHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	bundle, err := export.ParseBundle(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	compiled, findings := timeline.Compile(bundle.Steps, timeline.Options{
		Puzzles: bundle.Puzzles,
		Devices: s.Devices,
		Blocks:  s.Blocks,
	})
	if findings == nil {
		findings = diag.List{}
	}
	if compiled == nil {
		writeJSON(w, http.StatusUnprocessableEntity, CompileResponse{Diagnostics: findings})
		return
	}
	writeJSON(w, http.StatusOK, CompileResponse{
		OK:                  true,
		Timeline:            compiled.Timeline,
		Devices:             compiled.Devices,
		EstimatedDurationMs: compiled.EstimatedDurationMs,
		PuzzleFiles:         compiled.PuzzleFiles,
		Diagnostics:         findings,
	})
}

// ExportResponse reports which documents an export wrote.
type ExportResponse struct {
	OK          bool           `json:"ok"`
	Error       string         `json:"error,omitempty"`
	Result      *export.Result `json:"result,omitempty"`
	Diagnostics diag.List      `json:"diagnostics,omitempty"`
}

// exportHandler compiles and writes one scene. A partial export answers
// 207 so callers can tell it from both success and failure.
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	if s.Exporter == nil {
		notConfigured(w, "export")
		return
	}
	sceneID := r.PathValue("id")
	res, err := s.Exporter.Export(r.Context(), sceneID)
	if err != nil {
		var rejected *export.RejectedError
		switch {
		case errors.As(err, &rejected):
			recordExport("rejected", time.Now())
			writeJSON(w, http.StatusUnprocessableEntity, ExportResponse{Error: err.Error(), Diagnostics: rejected.Findings})
		case errors.Is(err, postgres.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			recordExport("failed", time.Now())
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	resp := ExportResponse{OK: !res.Partial(), Result: res}
	status := http.StatusOK
	outcome := "ok"
	if res.Partial() {
		resp.Error = "some documents failed to write"
		status = http.StatusMultiStatus
		outcome = "partial"
	}
	recordExport(outcome, time.Now())
	writeJSON(w, status, resp)
}

// ReorderRequest lists every step ID of the scene in the new order.
type ReorderRequest struct {
	StepIDs []string `json:"step_ids"`
}

func (s *Server) reorderHandler(w http.ResponseWriter, r *http.Request) {
	if s.Reorderer == nil {
		notConfigured(w, "reorder")
		return
	}
	var req ReorderRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.StepIDs) == 0 {
		writeError(w, http.StatusBadRequest, "missing 'step_ids' field")
		return
	}

	err := s.Reorderer.Reorder(r.Context(), r.PathValue("id"), req.StepIDs)
	var mismatch *reorder.MismatchError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ErrorResponse{OK: true})
	case errors.As(err, &mismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reorder.ErrConcurrentReorder):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// PuzzleConfigResponse carries validation findings for a saved config.
type PuzzleConfigResponse struct {
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
	Diagnostics diag.List `json:"diagnostics"`
}

// puzzleConfigHandler validates and stores a puzzle's block config. The
// stored document is the re-encoded config, not the request body, so
// every saved puzzle uses the same wire shape.
func (s *Server) puzzleConfigHandler(w http.ResponseWriter, r *http.Request) {
	if s.Puzzles == nil {
		notConfigured(w, "puzzle store")
		return
	}
	puzzleID := r.PathValue("id")
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	cfg, err := blocks.ParsePuzzleConfig(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	findings := blocks.ValidateConfig(cfg, s.Blocks)
	if findings == nil {
		findings = diag.List{}
	}
	if findings.HasErrors() {
		writeJSON(w, http.StatusUnprocessableEntity, PuzzleConfigResponse{Error: "invalid puzzle config", Diagnostics: findings})
		return
	}

	canonical, err := json.Marshal(cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.Puzzles.ReplacePuzzleConfig(r.Context(), puzzleID, canonical); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, postgres.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	events.Emit("info", "puzzle.config_saved", "", map[string]interface{}{
		"puzzle_id": puzzleID,
		"blocks":    len(cfg.Timeline),
		"warnings":  len(findings.Warnings()),
	})
	writeJSON(w, http.StatusOK, PuzzleConfigResponse{OK: true, Diagnostics: findings})
}
