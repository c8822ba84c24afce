package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"yatrisync/internal/queueaccess"
)

func newNetworkCommand(ctx *commandContext) *cobra.Command {
	var probe, asJSON bool
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Show current connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(c context.Context, access queueaccess.Access) error {
				// A local monitor has never probed, so its cached state means nothing.
				state, err := access.Network(c, probe || !access.Remote())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, state)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, networkLine(state, shouldColorize(out)))
				if !state.CheckedAt.IsZero() {
					fmt.Fprintf(out, "  Checked at:      %s\n", state.CheckedAt.Local().Format(time.DateTime))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "Probe interfaces now instead of reporting the cached state")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
