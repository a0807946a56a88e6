package main

import (
	"context"
	"errors"
	"fmt"

	"deep-research-agent/internal/config"
	"deep-research-agent/internal/pkg/logger"
	"deep-research-agent/pkg/events"
	pktNats "deep-research-agent/pkg/nats"

	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow research progress published to NATS by other processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.App.NatsURL == "" {
				return errors.New("watch needs NATS_URL")
			}

			sub, err := pktNats.NewSubscriber(cfg.App.NatsURL, logger.NewIsolatedLogger(cfg.App.LogFilePath))
			if err != nil {
				return err
			}
			defer sub.Close()

			stop, err := sub.Subscribe(cmd.Context(), pktNats.Subject("research.>"), "", func(ctx context.Context, event events.Event) error {
				data := event.Payload()
				if sessionID != "" && data[events.KeySessionID] != sessionID {
					return nil
				}
				fmt.Println(formatEvent(event))
				return nil
			})
			if err != nil {
				return err
			}
			defer stop()

			fmt.Println(faint("Watching research events, Ctrl+C to stop."))
			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "only show events for this session")
	return cmd
}

func formatEvent(event events.Event) string {
	data := event.Payload()
	stamp := faint(event.Timestamp().Local().Format("15:04:05"))
	switch event.EventType() {
	case events.TypeStageCompleted:
		return fmt.Sprintf("%s %v %s", stamp, data[events.KeySessionID], formatStageLine(data))
	case events.TypeRunCompleted:
		return fmt.Sprintf("%s %v %s confidence=%v", stamp, data[events.KeySessionID], stageOK("completed"), data["confidence_score"])
	case events.TypeRunFailed:
		return fmt.Sprintf("%s %v %s %v", stamp, data[events.KeySessionID], stageDegraded("failed"), data["reason"])
	default:
		return fmt.Sprintf("%s %s", stamp, event.EventType())
	}
}
