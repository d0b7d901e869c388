// Package cli implements the timeline operator command line: compiling and
// validating scene bundles, exporting scenes to a room directory, applying
// step reorders and watching executor events.
package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientTimeline/internal/blocks"
	"github.com/AaronLay10/SentientTimeline/internal/config"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	Format      string // "text" | "json"
	DevicesPath string
	ConfigPath  string

	now func() time.Time
}

// ValidFormats are the accepted --format values.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the timeline command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Compile, export and reorder escape room scene timelines",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DevicesPath, "devices", "", "devices.yaml; unknown devices become warnings")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "service.yaml for validation and topic settings")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewReorderCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

func (o *RootOptions) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// serviceConfig loads --config when given. Commands fall back to the
// config defaults otherwise.
func (o *RootOptions) serviceConfig() (*config.ServiceConfig, error) {
	if o.ConfigPath == "" {
		return &config.ServiceConfig{Version: 1}, nil
	}
	return config.LoadServiceConfig(o.ConfigPath)
}

// compileOptions builds the collaborators a compile checks against.
func (o *RootOptions) compileOptions(puzzles map[string]timeline.Puzzle) (timeline.Options, error) {
	cfg, err := o.serviceConfig()
	if err != nil {
		return timeline.Options{}, err
	}
	opts := timeline.Options{
		Puzzles: puzzles,
		Blocks: blocks.Options{
			MaxDepth:            cfg.Validation.MaxDepth,
			RequireWatchTimeout: cfg.Validation.RequireWatchTimeout,
		},
	}
	if o.DevicesPath != "" {
		devices, err := config.LoadDevicesConfig(o.DevicesPath)
		if err != nil {
			return timeline.Options{}, fmt.Errorf("failed to load devices: %w", err)
		}
		opts.Devices = devices
	}
	return opts, nil
}
