package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientTimeline/internal/export"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <bundle>",
		Short: "Compile a scene bundle into its scene document",
		Long: `Compile the scene steps of a YAML or JSON bundle into the timeline the
executor loads. Nothing is written to a room directory; use export for that.

With --format json the scene document is printed. Text output summarizes
the timeline one entry per line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "also write the scene document to this file")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	bundle, err := export.LoadBundleFile(path)
	if err != nil {
		return err
	}
	copts, err := opts.compileOptions(bundle.Puzzles)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	compiled, findings := timeline.Compile(bundle.Steps, copts)
	if compiled == nil {
		return rejected(out, opts.Format, findings)
	}

	doc := compiled.SceneDocument(bundle.Scene, opts.clock())
	if opts.Output != "" {
		data, err := timeline.Marshal(doc)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.Output, err)
		}
	}

	if opts.Format == "json" {
		return writeJSON(out, doc)
	}
	fmt.Fprintf(out, "scene %s (%s): %d entries, %d devices, ~%dms\n",
		doc.ID, timeline.SceneFile(bundle.Scene), len(doc.Timeline), len(doc.Devices), doc.EstimatedDurationMs)
	for _, e := range doc.Timeline {
		target := e.Target
		if e.PuzzleFile != "" {
			target = e.PuzzleFile
		}
		fmt.Fprintf(out, "  +%6dms  %-16s %-20s %s\n", e.DelayMs, e.Action, target, e.Name)
	}
	printFindings(out, findings)
	return nil
}
