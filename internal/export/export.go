// Package export writes compiled scene and puzzle documents into a room
// directory. Export is not atomic: every document is written independently
// under a deterministic name, so a failed export is repaired by exporting
// again.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/SentientTimeline/internal/blocks"
	"github.com/AaronLay10/SentientTimeline/internal/diag"
	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// DefaultParallel bounds concurrent puzzle document writes.
const DefaultParallel = 4

// ResolutionError reports a lookup that found nothing. Tried lists every
// path that was checked.
type ResolutionError struct {
	What  string
	Tried []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s not found (tried %s)", e.What, strings.Join(e.Tried, ", "))
}

// RejectedError wraps the validation findings that stopped compilation.
type RejectedError struct {
	Findings diag.List
}

func (e *RejectedError) Error() string {
	errs := e.Findings.Errors()
	if len(errs) == 1 {
		return "compile rejected: " + errs[0].Error()
	}
	return fmt.Sprintf("compile rejected: %d errors, first: %s", len(errs), errs[0].Error())
}

// DocKind separates scene documents from puzzle documents.
type DocKind string

const (
	DocScene  DocKind = "scene"
	DocPuzzle DocKind = "puzzle"
)

// Document is the outcome of writing one file.
type Document struct {
	Kind  DocKind `json:"kind"`
	ID    string  `json:"id"`
	Path  string  `json:"path"`
	OK    bool    `json:"ok"`
	Error string  `json:"error,omitempty"`
}

// Result lists every document an export attempted.
type Result struct {
	SceneID   string     `json:"scene_id"`
	RoomDir   string     `json:"room_dir"`
	Documents []Document `json:"documents"`
	Warnings  diag.List  `json:"warnings,omitempty"`
}

// Failed returns the documents that were not written.
func (r *Result) Failed() []Document {
	var out []Document
	for _, d := range r.Documents {
		if !d.OK {
			out = append(out, d)
		}
	}
	return out
}

// Partial reports whether some documents were written and others were not.
func (r *Result) Partial() bool {
	failed := len(r.Failed())
	return failed > 0 && failed < len(r.Documents)
}

// Exporter compiles scenes from Source and writes them under Root.
type Exporter struct {
	Root     string
	Source   Source
	Devices  timeline.DeviceCatalog
	Blocks   blocks.Options
	Parallel int
	Now      func() time.Time
}

// Export compiles sceneID and writes its documents. A partially written
// export returns a result whose Partial reports true and a nil error; the
// caller decides whether to retry.
func (e *Exporter) Export(ctx context.Context, sceneID string) (*Result, error) {
	events.Emit("info", "export.started", "", map[string]interface{}{
		"scene_id": sceneID,
	})

	res, err := e.export(ctx, sceneID)
	if err != nil {
		var rejected *RejectedError
		if !errors.As(err, &rejected) {
			events.Emit("error", "export.failed", err.Error(), map[string]interface{}{
				"scene_id": sceneID,
			})
		}
		return res, err
	}

	written := len(res.Documents) - len(res.Failed())
	if res.Partial() {
		failed := make([]string, 0)
		for _, d := range res.Failed() {
			failed = append(failed, d.Path)
		}
		events.Emit("warning", "export.partial", "", map[string]interface{}{
			"scene_id": sceneID,
			"room_dir": res.RoomDir,
			"written":  written,
			"failed":   failed,
		})
		return res, nil
	}
	events.Emit("info", "export.completed", "", map[string]interface{}{
		"scene_id": sceneID,
		"room_dir": res.RoomDir,
		"written":  written,
		"warnings": len(res.Warnings),
	})
	return res, nil
}

func (e *Exporter) export(ctx context.Context, sceneID string) (*Result, error) {
	if e.Source == nil {
		return nil, fmt.Errorf("export source not configured")
	}
	b, err := e.Source.Load(ctx, sceneID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scene: %w", err)
	}

	dir, err := RoomDir(e.Root, b.RoomSlug, b.Scene.RoomID)
	if err != nil {
		return nil, err
	}

	compiled, findings := timeline.Compile(b.Steps, timeline.Options{
		Puzzles: b.Puzzles,
		Devices: e.Devices,
		Blocks:  e.Blocks,
	})
	if compiled == nil {
		errs := findings.Errors()
		events.Emit("warning", "compile.rejected", errs[0].Error(), map[string]interface{}{
			"scene_id": sceneID,
			"errors":   len(errs),
			"codes":    errs.Codes(),
		})
		return nil, &RejectedError{Findings: findings}
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	res := &Result{SceneID: sceneID, RoomDir: dir, Warnings: findings.Warnings()}

	// The scene document goes first; puzzles it references follow.
	sceneDoc := compiled.SceneDocument(b.Scene, now())
	scenePath := timeline.SceneFile(b.Scene)
	if err := writeDocument(dir, scenePath, sceneDoc); err != nil {
		res.Documents = append(res.Documents, Document{Kind: DocScene, ID: b.Scene.ID, Path: scenePath, Error: err.Error()})
		return res, fmt.Errorf("failed to write scene document: %w", err)
	}
	res.Documents = append(res.Documents, Document{Kind: DocScene, ID: b.Scene.ID, Path: scenePath, OK: true})

	puzzleDocs := make([]Document, len(compiled.Puzzles))
	limit := e.Parallel
	if limit <= 0 {
		limit = DefaultParallel
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, doc := range compiled.Puzzles {
		path := timeline.PuzzleFile(doc.ID)
		puzzleDocs[i] = Document{Kind: DocPuzzle, ID: doc.ID, Path: path}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				puzzleDocs[i].Error = err.Error()
				return nil
			}
			if err := writeDocument(dir, path, doc); err != nil {
				puzzleDocs[i].Error = err.Error()
				return nil
			}
			puzzleDocs[i].OK = true
			return nil
		})
	}
	_ = g.Wait()
	res.Documents = append(res.Documents, puzzleDocs...)
	return res, nil
}

// RoomDir returns the first existing directory among the candidate room
// paths under root.
func RoomDir(root, roomSlug, roomID string) (string, error) {
	var tried []string
	seen := make(map[string]bool)
	try := func(parts ...string) string {
		for _, p := range parts {
			if p == "" {
				return ""
			}
		}
		path := filepath.Join(append([]string{root}, parts...)...)
		if seen[path] {
			return ""
		}
		seen[path] = true
		tried = append(tried, path)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path
		}
		return ""
	}

	slug := timeline.Slugify(roomSlug)
	candidates := [][]string{
		{"rooms", slug},
		{"rooms", roomID},
		{slug},
	}
	for _, c := range candidates {
		if dir := try(c...); dir != "" {
			return dir, nil
		}
	}
	return "", &ResolutionError{What: "room directory", Tried: tried}
}

// writeDocument writes doc to dir/rel through a temp file and rename, so a
// reader never sees a half-written document.
func writeDocument(dir, rel string, doc any) error {
	data, err := timeline.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", rel, err)
	}
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
