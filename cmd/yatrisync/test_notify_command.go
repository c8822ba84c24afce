package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"yatrisync/internal/queueaccess"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(c context.Context, access queueaccess.Access) error {
				resp, err := access.TestNotification(c)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Sent {
					fmt.Fprintln(out, "Test notification sent")
					return nil
				}
				fmt.Fprintf(out, "Notification not sent: %s\n", resp.Message)
				return nil
			})
		},
	}
}
