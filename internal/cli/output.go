package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/AaronLay10/SentientTimeline/internal/diag"
)

// ErrInvalid is returned when a bundle or puzzle config has error findings.
// The findings themselves are already printed.
var ErrInvalid = errors.New("validation failed")

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printFindings writes one finding per line, errors before warnings.
func printFindings(w io.Writer, findings diag.List) {
	for _, d := range append(findings.Errors(), findings.Warnings()...) {
		fmt.Fprintf(w, "%-7s %s\n", d.Severity, d.Error())
	}
}

// rejected reports error findings in the requested format and returns
// ErrInvalid wrapped with the count.
func rejected(w io.Writer, format string, findings diag.List) error {
	if format == "json" {
		if err := writeJSON(w, map[string]any{"ok": false, "diagnostics": findings}); err != nil {
			return err
		}
	} else {
		printFindings(w, findings)
	}
	return fmt.Errorf("%d error(s): %w", len(findings.Errors()), ErrInvalid)
}
