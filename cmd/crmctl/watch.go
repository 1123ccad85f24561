package main

import (
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/crmkit/crm_services/internal/platform/messagebroker"
)

func newWatchCmd(a *app) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print email and SMS envelopes published by the notification service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.NATSUrl == "" {
				return fmt.Errorf("no NATS url: set APP_NATS_URL")
			}
			client, err := messagebroker.NewNatsClient(a.cfg.NATSUrl, "crmctl", a.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var mu sync.Mutex
			out := cmd.OutOrStdout()
			// Empty queue group: every watcher sees every message.
			_, err = client.Subscribe(ctx, subject, "", func(msg *nats.Msg) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(out, "%s\t%s\n", msg.Subject, msg.Data)
			})
			if err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "notifications.>", "NATS subject to watch")
	return cmd
}
