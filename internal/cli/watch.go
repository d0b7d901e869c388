package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientTimeline/internal/config"
	"github.com/AaronLay10/SentientTimeline/internal/execsync"
	"github.com/AaronLay10/SentientTimeline/internal/mqtt"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Entity string
	Topic  string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print executor lifecycle events from MQTT",
		Long: `Watch subscribes to the executor events topic on the broker named by
MQTT_URL and prints each decoded event until interrupted. --entity limits
the output to one scene or puzzle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Entity, "entity", "", "scene or puzzle ID to follow")
	cmd.Flags().StringVar(&opts.Topic, "topic", "", "events topic (default from service.yaml)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	cfg, err := opts.serviceConfig()
	if err != nil {
		return err
	}
	env, err := config.ParseEnv()
	if err != nil {
		return err
	}
	topic := opts.Topic
	if topic == "" {
		topic = cfg.EventsTopic()
	}

	client := mqtt.NewClient(env.MQTTURL, fmt.Sprintf("sentient-timeline-watch-%d", time.Now().UnixNano()))
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Disconnect()

	bus := execsync.NewBus(64)
	defer bus.Close()
	sub := bus.Subscribe(opts.Entity)
	defer sub.Close()
	if err := mqtt.NewExecutionSource(client, topic, bus).Start(); err != nil {
		return err
	}
	return printEvents(cmd, opts.Format, sub)
}

// printEvents writes events from sub until the command context is done or
// the subscription closes.
func printEvents(cmd *cobra.Command, format string, sub *execsync.Subscription) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if format == "json" {
				if err := writeJSON(out, execsync.ReceivedFields(ev)); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintf(out, "%s  %-28s %s\n", time.Now().Format("15:04:05.000"), ev.Name(), ev.EntityID())
		}
	}
}
