package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientTimeline/internal/config"
	"github.com/AaronLay10/SentientTimeline/internal/export"
)

// ErrPartial is returned when some export documents failed to write.
var ErrPartial = errors.New("export partially written")

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Bundle   string
	Root     string
	Parallel int
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <scene-id>",
		Short: "Compile a scene and write its documents to the room directory",
		Long: `Export compiles a scene and writes scenes/<slug>.json and one
puzzles/<id>.json per referenced puzzle into the room directory.

The scene is read from --bundle when given, otherwise from Postgres using
the PG* environment. Writes are not atomic as a set: a partial export lists
each document's outcome and exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Bundle, "bundle", "", "YAML or JSON scene bundle instead of Postgres")
	cmd.Flags().StringVar(&opts.Root, "root", "", "directory room folders live under")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 0, "concurrent puzzle document writes")

	return cmd
}

func runExport(opts *ExportOptions, sceneID string, cmd *cobra.Command) error {
	cfg, err := opts.serviceConfig()
	if err != nil {
		return err
	}
	copts, err := opts.compileOptions(nil)
	if err != nil {
		return err
	}

	exp := &export.Exporter{
		Root:     opts.exportRoot(cfg),
		Devices:  copts.Devices,
		Blocks:   copts.Blocks,
		Parallel: opts.Parallel,
		Now:      opts.clock,
	}
	if exp.Parallel == 0 {
		exp.Parallel = cfg.Export.Parallel
	}
	if opts.Bundle != "" {
		b, err := export.LoadBundleFile(opts.Bundle)
		if err != nil {
			return err
		}
		exp.Source = export.StaticSource{b.Scene.ID: b}
	} else {
		pg, err := openPostgres(cfg.Room.ID)
		if err != nil {
			return err
		}
		defer pg.Close()
		exp.Source = &export.PostgresSource{Client: pg}
	}

	out := cmd.OutOrStdout()
	res, err := exp.Export(cmd.Context(), sceneID)
	var rej *export.RejectedError
	if errors.As(err, &rej) {
		return rejected(out, opts.Format, rej.Findings)
	}
	if res == nil {
		return err
	}

	if opts.Format == "json" {
		if werr := writeJSON(out, res); werr != nil {
			return werr
		}
	} else {
		fmt.Fprintf(out, "room %s\n", res.RoomDir)
		for _, d := range res.Documents {
			if d.OK {
				fmt.Fprintf(out, "  wrote  %s\n", d.Path)
			} else {
				fmt.Fprintf(out, "  FAILED %s: %s\n", d.Path, d.Error)
			}
		}
		printFindings(out, res.Warnings)
	}
	if err != nil {
		return err
	}
	if failed := res.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d documents: %w", len(failed), len(res.Documents), ErrPartial)
	}
	return nil
}

func (o *ExportOptions) exportRoot(cfg *config.ServiceConfig) string {
	if o.Root != "" {
		return o.Root
	}
	if env, err := config.ParseEnv(); err == nil && env.ExportRoot != "" {
		return env.ExportRoot
	}
	return cfg.ExportRoot()
}
