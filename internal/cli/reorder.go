package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientTimeline/internal/reorder"
)

// ReorderOptions holds flags for the reorder command.
type ReorderOptions struct {
	*RootOptions
	SQLite   string
	Strategy string
}

// NewReorderCommand creates the reorder command.
func NewReorderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReorderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reorder <scene-id> <step-id>...",
		Short: "Renumber a scene's steps in the given order",
		Long: `Reorder assigns step_number 1..n to the listed steps in one transaction.
The list must name every step of the scene exactly once.

Postgres is used unless --sqlite names a local database file.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReorder(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SQLite, "sqlite", "", "SQLite database file holding scene_steps")
	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "two_phase or deferred (default from service.yaml)")

	return cmd
}

func runReorder(opts *ReorderOptions, sceneID string, stepIDs []string, cmd *cobra.Command) error {
	cfg, err := opts.serviceConfig()
	if err != nil {
		return err
	}
	name := opts.Strategy
	if name == "" {
		name = cfg.Reorder.Strategy
	}
	strategy, err := reorder.ParseStrategy(name)
	if err != nil {
		return err
	}

	store := &reorder.SQLStore{Dialect: reorder.Postgres}
	if opts.SQLite != "" {
		db, err := openSQLite(opts.SQLite)
		if err != nil {
			return err
		}
		defer db.Close()
		store.DB, store.Dialect = db, reorder.SQLite
	} else {
		pg, err := openPostgres(cfg.Room.ID)
		if err != nil {
			return err
		}
		defer pg.Close()
		store.DB = pg.DB()
	}

	out := cmd.OutOrStdout()
	err = reorder.New(store, strategy).Reorder(cmd.Context(), sceneID, stepIDs)
	var mm *reorder.MismatchError
	if errors.As(err, &mm) && opts.Format == "json" {
		if werr := writeJSON(out, map[string]any{"ok": false, "missing": mm.Missing, "unknown": mm.Unknown, "duplicates": mm.Duplicates}); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return writeJSON(out, map[string]any{"ok": true, "scene_id": sceneID, "steps": stepIDs})
	}
	for i, id := range stepIDs {
		fmt.Fprintf(out, "%3d  %s\n", i+1, id)
	}
	return nil
}
