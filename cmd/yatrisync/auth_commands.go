package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"yatrisync/internal/ipc"
	"yatrisync/internal/queueaccess"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the API credential used for replay",
	}
	authCmd.AddCommand(newAuthLoginCommand(ctx))
	authCmd.AddCommand(newAuthStatusCommand(ctx))
	authCmd.AddCommand(newAuthLogoutCommand(ctx))
	return authCmd
}

func newAuthLoginCommand(ctx *commandContext) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API token and sync anything waiting on it",
		Long: `Store an API token and sync anything waiting on it.

Without --token the token is read from the first line of stdin, which keeps it
out of shell history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			value := strings.TrimSpace(token)
			if value == "" {
				read, err := readTokenLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				value = read
			}
			return ctx.withAccess(cmd, func(c context.Context, access queueaccess.Access) error {
				resp, err := access.Login(c, value)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Token stored")
				printAuthStatus(out, resp.Auth)
				return printSyncResult(out, resp.Sync)
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "API token (read from stdin when omitted)")
	return cmd
}

func readTokenLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		return "", errors.New("no token provided; pass --token or pipe it on stdin")
	}
	token := strings.TrimSpace(scanner.Text())
	if token == "" {
		return "", errors.New("no token provided; pass --token or pipe it on stdin")
	}
	return token, nil
}

func newAuthStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Describe the stored token without contacting the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(c context.Context, access queueaccess.Access) error {
				status, err := access.AuthStatus(c)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				printAuthStatus(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newAuthLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(c context.Context, access queueaccess.Access) error {
				if err := access.Logout(c); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Token removed")
				return nil
			})
		},
	}
}

func printAuthStatus(out io.Writer, status ipc.AuthStatus) {
	if !status.HasToken {
		fmt.Fprintln(out, "No token stored (run `yatrisync auth login`)")
		return
	}
	if status.Opaque {
		fmt.Fprintln(out, "Token stored (opaque, expiry unknown)")
		return
	}
	fmt.Fprintln(out, "Token stored (JWT)")
	if status.Subject != "" {
		fmt.Fprintf(out, "  Subject: %s\n", status.Subject)
	}
	if status.Issuer != "" {
		fmt.Fprintf(out, "  Issuer:  %s\n", status.Issuer)
	}
	if status.ExpiresAt > 0 {
		expires := time.Unix(status.ExpiresAt, 0).Format(time.DateTime)
		if status.Expired {
			fmt.Fprintf(out, "  Expired: %s\n", expires)
		} else {
			fmt.Fprintf(out, "  Expires: %s\n", expires)
		}
	}
}
