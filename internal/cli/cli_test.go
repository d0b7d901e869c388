package cli

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/SentientTimeline/internal/timeline"
	"github.com/AaronLay10/SentientTimeline/internal/version"
)

const bundle = "testdata/attic.yaml"

func fixedClock() time.Time { return time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC) }

// run executes the command tree with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newRootCommand(&RootOptions{now: fixedClock})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	_, err := run(t, "--format", "xml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.Version+"\n", out)
}

func TestCompileJSON(t *testing.T) {
	out, err := run(t, "--format", "json", "compile", bundle)
	require.NoError(t, err)

	var doc timeline.SceneDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "scene-attic", doc.ID)
	assert.Equal(t, []string{"fog-1"}, doc.Devices)
	assert.Equal(t, int64(3000), doc.EstimatedDurationMs)
	require.Len(t, doc.Timeline, 2, "wait steps fold into the offset")
	assert.Equal(t, int64(3000), doc.Timeline[1].DelayMs)
	assert.Equal(t, "puzzles/pz-chest.json", doc.Timeline[1].PuzzleFile)
	assert.Equal(t, "2026-05-06T07:08:09Z", doc.Metadata.ExportedAt)
}

func TestCompileTextAndOutputFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "attic.json")
	out, err := run(t, "compile", bundle, "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "scene scene-attic (scenes/attic-intro.json): 2 entries, 1 devices, ~3000ms")
	assert.Contains(t, out, "puzzles/pz-chest.json")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "}\n"))
}

func TestCompileRejected(t *testing.T) {
	path := writeFile(t, "broken.json", `{
		"scene": {"id": "s", "room_id": "r", "name": "Broken"},
		"steps": [
			{"id": "a", "step_number": 1, "step_type": "puzzle", "config": {"puzzle_id": "pz-missing"}},
			{"id": "b", "step_number": 1, "step_type": "video", "config": {}}
		]
	}`)

	out, err := run(t, "--format", "json", "compile", path)
	require.ErrorIs(t, err, ErrInvalid)

	var resp struct {
		OK          bool `json:"ok"`
		Diagnostics []struct {
			Code string `json:"code"`
		} `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.OK)
	var codes []string
	for _, d := range resp.Diagnostics {
		codes = append(codes, d.Code)
	}
	assert.Contains(t, codes, "E206")
	assert.Contains(t, codes, "E202")
	assert.Contains(t, codes, "E203")
}

func TestValidateBundleWithDevices(t *testing.T) {
	out, err := run(t, "--devices", "testdata/devices.yaml", "validate", bundle)
	require.NoError(t, err)
	assert.Contains(t, out, "W202")
	assert.Contains(t, out, `unknown device "fog-1"`)
	assert.Contains(t, out, "ok: 3 checked, 1 warning(s)")
}

func TestValidatePuzzle(t *testing.T) {
	good := writeFile(t, "good.json", `{"timeline":[{"id":"w","type":"solve","name":"Done"}]}`)
	out, err := run(t, "--format", "json", "validate", "--puzzle", good)
	require.NoError(t, err)
	var res ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.OK)
	assert.Equal(t, 1, res.Checked)

	dup := writeFile(t, "dup.yaml", "timeline:\n  - {id: a, type: solve, name: A}\n  - {id: a, type: fail, name: B}\n")
	out, err = run(t, "validate", "--puzzle", dup)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, out, "E301")
}

func TestExportFromBundle(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "rooms", "attic"), 0o755))

	out, err := run(t, "export", "scene-attic", "--bundle", bundle, "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote  scenes/attic-intro.json")
	assert.FileExists(t, filepath.Join(root, "rooms", "attic", "scenes", "attic-intro.json"))
	assert.FileExists(t, filepath.Join(root, "rooms", "attic", "puzzles", "pz-chest.json"))
}

func TestExportPartial(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "rooms", "attic", "puzzles", "pz-chest.json", "x"), 0o755))

	out, err := run(t, "export", "scene-attic", "--bundle", bundle, "--root", root)
	require.ErrorIs(t, err, ErrPartial)
	assert.Contains(t, out, "FAILED puzzles/pz-chest.json")
	assert.FileExists(t, filepath.Join(root, "rooms", "attic", "scenes", "attic-intro.json"))
}

func TestExportMissingRoom(t *testing.T) {
	_, err := run(t, "export", "scene-attic", "--bundle", bundle, "--root", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "room directory not found")
}

func stepsDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "steps.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`
		CREATE TABLE scene_steps (
			id          TEXT PRIMARY KEY,
			scene_id    TEXT NOT NULL,
			step_number INTEGER NOT NULL,
			UNIQUE (scene_id, step_number)
		);
		INSERT INTO scene_steps (id, scene_id, step_number) VALUES
			('fog', 'scene-attic', 1), ('pause', 'scene-attic', 2), ('chest', 'scene-attic', 3);
	`)
	require.NoError(t, err)
	return path
}

func TestReorderSQLite(t *testing.T) {
	path := stepsDB(t)
	out, err := run(t, "reorder", "scene-attic", "chest", "fog", "pause", "--sqlite", path)
	require.NoError(t, err)
	assert.Contains(t, out, "  1  chest")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT step_number FROM scene_steps WHERE id = 'pause'`).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestReorderSQLiteMismatch(t *testing.T) {
	path := stepsDB(t)
	out, err := run(t, "--format", "json", "reorder", "scene-attic", "chest", "fog", "--sqlite", path)
	require.Error(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []any{"pause"}, resp["missing"])

	_, err = run(t, "reorder", "scene-attic", "chest", "fog", "pause", "--sqlite", path, "--strategy", "shuffle")
	assert.ErrorContains(t, err, "unknown reorder strategy")
}
