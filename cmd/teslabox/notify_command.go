package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"teslabox/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the configured transports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			notifier := notifications.NewService(cfg, nil)
			defer notifications.Close(notifier) //nolint:errcheck
			if !notifier.Enabled() {
				fmt.Fprintln(cmd.OutOrStdout(), "No notification transport configured")
				return nil
			}
			if err := notifier.Publish(cmd.Context(), notifications.EventTest, notifications.Payload{"carName": cfg.Car.Name}); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Failed to send notification")
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
