package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"yatrisync/internal/ipc"
	"yatrisync/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage queued actions",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueDeadLettersCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued actions, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(c context.Context, access queueaccess.Access) error {
				actions, err := access.List(c)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, actions)
				}
				out := cmd.OutOrStdout()
				if len(actions) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprint(out, renderTable(actionColumns, actionRows(actions)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

var actionColumns = []column{left("ID"), left("Kind"), left("Method"), left("Endpoint"), right("Attempts"), left("Queued")}

func actionRows(actions []ipc.Action) [][]string {
	rows := make([][]string, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, []string{a.ID, a.Kind, a.Method, a.Endpoint, strconv.Itoa(a.Attempts), formatMillis(a.CreatedAt)})
	}
	return rows
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var kind, method, payload, payloadFile string
	cmd := &cobra.Command{
		Use:     "add <endpoint>",
		Aliases: []string{"enqueue"},
		Short:   "Queue an action for replay",
		Long: `Queue an action for replay against the configured API.

The payload is sent verbatim as the request body. Use --payload-file - to read
it from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := resolvePayload(cmd.InOrStdin(), payload, payloadFile)
			if err != nil {
				return err
			}
			req := ipc.EnqueueRequest{Kind: kind, Endpoint: args[0], Method: method, Payload: body}
			return ctx.withAccess(cmd, func(c context.Context, access queueaccess.Access) error {
				action, err := access.Enqueue(c, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s %s as %s\n", action.Method, action.Endpoint, action.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Action kind label shown in logs and listings")
	cmd.Flags().StringVarP(&method, "method", "X", "POST", "HTTP method (POST, PUT, PATCH, DELETE)")
	cmd.Flags().StringVarP(&payload, "payload", "d", "", "Request body")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "Read the request body from a file, or - for stdin")
	cmd.MarkFlagsMutuallyExclusive("payload", "payload-file")
	return cmd
}

func resolvePayload(stdin io.Reader, inline, file string) (string, error) {
	switch strings.TrimSpace(file) {
	case "":
		return inline, nil
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read payload from stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read payload file: %w", err)
		}
		return string(data), nil
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every queued action without replaying it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("refusing to discard queued actions without --force")
			}
			return ctx.withAccess(cmd, func(c context.Context, access queueaccess.Access) error {
				removed, err := access.Clear(c)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d action(s)\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Confirm discarding queued actions")
	return cmd
}

func newQueueDeadLettersCommand(ctx *commandContext) *cobra.Command {
	var purge, asJSON bool
	cmd := &cobra.Command{
		Use:     "dead-letters",
		Aliases: []string{"dropped"},
		Short:   "List actions dropped after exhausting their retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(c context.Context, access queueaccess.Access) error {
				out := cmd.OutOrStdout()
				if purge {
					purged, err := access.PurgeDeadLetters(c)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Purged %d dead letter(s)\n", purged)
					return nil
				}
				letters, err := access.DeadLetters(c)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, letters)
				}
				if len(letters) == 0 {
					fmt.Fprintln(out, "No dropped actions")
					return nil
				}
				rows := make([][]string, 0, len(letters))
				for _, l := range letters {
					rows = append(rows, []string{l.ID, l.Kind, l.Method, l.Endpoint, strconv.Itoa(l.Attempts), l.Reason, formatMillis(l.DroppedAt)})
				}
				fmt.Fprint(out, renderTable([]column{
					left("ID"), left("Kind"), left("Method"), left("Endpoint"), right("Attempts"), left("Reason"), left("Dropped"),
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "Delete all dead letters")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(c context.Context, access queueaccess.Access) error {
				resp, err := access.DatabaseHealth(c)
				if err != nil {
					return err
				}
				h := resp.DatabaseHealth
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database path:   %s\n", h.DBPath)
				fmt.Fprintf(out, "Exists:          %s\n", yesNo(h.DatabaseExists))
				fmt.Fprintf(out, "Readable:        %s\n", yesNo(h.DatabaseReadable))
				fmt.Fprintf(out, "Dir writable:    %s\n", yesNo(h.DirWritable))
				fmt.Fprintf(out, "Schema version:  %d\n", h.SchemaVersion)
				fmt.Fprintf(out, "Tables present:  %s\n", yesNo(h.TablesPresent))
				fmt.Fprintf(out, "Integrity check: %s\n", h.IntegrityCheck)
				fmt.Fprintf(out, "Queued actions:  %d\n", h.QueuedActions)
				fmt.Fprintf(out, "Dead letters:    %d\n", h.DeadLetters)
				if h.Error != "" {
					fmt.Fprintf(out, "Error:           %s\n", h.Error)
				}
				return nil
			})
		},
	}
}
