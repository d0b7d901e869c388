package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientTimeline/internal/blocks"
	"github.com/AaronLay10/SentientTimeline/internal/diag"
	"github.com/AaronLay10/SentientTimeline/internal/export"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Puzzle bool
}

// ValidationResult is the JSON form of a validate run.
type ValidationResult struct {
	OK          bool      `json:"ok"`
	Checked     int       `json:"checked"`
	Diagnostics diag.List `json:"diagnostics"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a scene bundle or puzzle config without compiling",
		Long: `Validate every step of a scene bundle, including the puzzles it references,
and report all findings at once. With --puzzle the file is a single puzzle
config ({"timeline": [...]}) and only its blocks are checked.

Exits non-zero when any finding is an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Puzzle, "puzzle", false, "file is a puzzle config instead of a scene bundle")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	var (
		findings diag.List
		checked  int
	)
	if opts.Puzzle {
		cfg, err := loadPuzzleConfig(path)
		if err != nil {
			return err
		}
		sc, err := opts.serviceConfig()
		if err != nil {
			return err
		}
		findings = blocks.ValidateConfig(cfg, blocks.Options{
			MaxDepth:            sc.Validation.MaxDepth,
			RequireWatchTimeout: sc.Validation.RequireWatchTimeout,
		})
		checked = len(cfg.Timeline)
	} else {
		bundle, err := export.LoadBundleFile(path)
		if err != nil {
			return err
		}
		copts, err := opts.compileOptions(bundle.Puzzles)
		if err != nil {
			return err
		}
		findings = timeline.Validate(bundle.Steps, copts)
		checked = len(bundle.Steps)
	}

	out := cmd.OutOrStdout()
	if findings.HasErrors() {
		return rejected(out, opts.Format, findings)
	}
	if findings == nil {
		findings = diag.List{}
	}
	if opts.Format == "json" {
		return writeJSON(out, ValidationResult{OK: true, Checked: checked, Diagnostics: findings})
	}
	printFindings(out, findings)
	fmt.Fprintf(out, "ok: %d checked, %d warning(s)\n", checked, len(findings))
	return nil
}

func loadPuzzleConfig(path string) (*blocks.PuzzleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read puzzle config: %w", err)
	}
	data, err = export.ToJSON(path, data)
	if err != nil {
		return nil, err
	}
	return blocks.ParsePuzzleConfig(data)
}
