package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"yatrisync/internal/ipc"
	"yatrisync/internal/queueaccess"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay queued actions now if the device is online",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(c context.Context, access queueaccess.Access) error {
				res, err := access.Sync(c)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, res)
				}
				return printSyncResult(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printSyncResult(out io.Writer, res ipc.SyncResult) error {
	switch res.Skipped {
	case "offline":
		fmt.Fprintln(out, "Offline; queued actions will replay on reconnect")
		return nil
	case "in_progress":
		fmt.Fprintln(out, "A sync pass is already running")
		return nil
	}
	if !res.Started {
		return nil
	}
	if res.Total == 0 && res.Error == "" {
		fmt.Fprintln(out, "Queue is empty; nothing to sync")
		return nil
	}
	elapsed := (time.Duration(res.DurationMillis) * time.Millisecond).String()
	fmt.Fprintf(out, "Synced %d of %d action(s) in %s (%d failed, %d dropped)\n",
		res.Replayed, res.Total, elapsed, res.Failed, res.Dropped)
	if res.Error != "" {
		return errors.New(res.Error)
	}
	return nil
}
