package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/mq"
	"github.com/conveyorhq/conveyor/internal/telemetry"
)

func newWatchCmd(outputFn func() *Output) *cobra.Command {
	var projectFilter string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the execution event stream from RabbitMQ",
		Args:  wrapArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			logger := telemetry.SetupLogger()

			url := mq.URLFromEnv()
			if url == "" {
				return argumentErrorf("MQ_URL is not set")
			}
			conn, err := mq.NewConnection(url, logger)
			if err != nil {
				return fmt.Errorf("connect event broker: %w", err)
			}
			defer conn.Close()

			consumer := mq.NewConsumer(conn, func(ctx context.Context, ev *mq.Event) error {
				if projectFilter != "" && ev.Project != projectFilter {
					return nil
				}
				if out.JSONMode() {
					out.JSON(ev)
					return nil
				}
				out.Line("%s  %-14s  %s", ev.Timestamp.Format("15:04:05"), ev.Key, formatEvent(ev))
				return nil
			}, logger)

			err = consumer.Start(cmd.Context())
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&projectFilter, "project-name", "", "Only show events of this project")
	return cmd
}

// formatEvent — однострочное представление события для таблицы.
func formatEvent(ev *mq.Event) string {
	switch ev.Key {
	case mq.RoutingKeyRunStarted:
		return fmt.Sprintf("%s: %s", ev.Project, strings.Join(ev.Items, ", "))
	case mq.RoutingKeyItemFinished:
		return fmt.Sprintf("%s: %s%s: %s", ev.Project, ev.Item, filterSuffix(ev.FilterID), ev.State)
	case mq.RoutingKeyRunFinished:
		return fmt.Sprintf("%s: %s", ev.Project, ev.State)
	default:
		return ev.Project
	}
}
