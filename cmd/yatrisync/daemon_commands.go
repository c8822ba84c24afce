package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"yatrisync/internal/daemonctl"
	"yatrisync/internal/ipc"
)

const (
	startWaitTimeout = 10 * time.Second
	// Covers the daemon finishing one in-flight replay request.
	stopGraceMargin = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the yatrisync daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			cfg := ctx.configValue()
			result, err := daemonctl.EnsureStarted(cmd.Context(), cfg.SocketPath(), exe, daemonLaunchOptions(ctx), startWaitTimeout)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the yatrisync daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg := ctx.configValue()
			grace := cfg.APITimeout() + stopGraceMargin
			result, err := daemonctl.StopAndTerminate(cmd.Context(), cfg, grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit within %s; killed pid %d\n", grace, result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the yatrisync daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			cfg := ctx.configValue()
			_, stopErr := daemonctl.StopAndTerminate(cmd.Context(), cfg, cfg.APITimeout()+stopGraceMargin)
			if stopErr != nil && !errors.Is(stopErr, daemonctl.ErrDaemonNotRunning) {
				return stopErr
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), cfg.SocketPath(), exe, daemonLaunchOptions(ctx), startWaitTimeout)
			if err != nil {
				return err
			}
			if stopErr == nil {
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, network, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), cfg, localStatus(ctx))
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, snap)
			}
			stdout := cmd.OutOrStdout()
			for _, line := range renderStatus(snap, shouldColorize(stdout)) {
				fmt.Fprintln(stdout, line)
			}
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{ConfigPath: ctx.configPath}
	if ctx.logLevelFlag != nil {
		opts.LogLevel = *ctx.logLevelFlag
	}
	return opts
}

func localStatus(ctx *commandContext) func(context.Context) (ipc.StatusResponse, error) {
	return func(c context.Context) (ipc.StatusResponse, error) {
		d, err := ctx.openLocal()
		if err != nil {
			return ipc.StatusResponse{}, err
		}
		defer d.Close()
		return ipc.FromStatus(d.Status(c)), nil
	}
}

func renderStatus(snap daemonctl.StatusSnapshot, colorize bool) []string {
	st := snap.Status
	lines := renderSectionHeader("Daemon", colorize)
	if snap.Reachable && st.Running {
		lines = append(lines, renderStatusLine("Yatrisync", statusOK, "Running (pid "+strconv.Itoa(st.PID)+")", colorize))
		lines = append(lines, networkLine(st.Network, colorize))
		lines = append(lines, syncLine(st.LastSync, st.LastSyncAt, st.SyncInProgress, colorize))
	} else {
		lines = append(lines, renderStatusLine("Yatrisync", statusWarn, "Not running (run `yatrisync start`)", colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Queue", colorize)...)
	if st.QueueError != "" {
		lines = append(lines, renderStatusLine("Database", statusError, st.QueueError, colorize))
		return lines
	}
	pendingKind := statusOK
	if st.Pending > 0 {
		pendingKind = statusInfo
	}
	lines = append(lines, renderStatusLine("Pending", pendingKind, strconv.Itoa(st.Pending)+" action(s)", colorize))
	deadKind := statusOK
	if st.DeadLetters > 0 {
		deadKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Dead Letters", deadKind, strconv.Itoa(st.DeadLetters)+" dropped", colorize))
	lines = append(lines, renderStatusLine("Max Retries", statusInfo, strconv.Itoa(st.MaxRetries), colorize))
	if snap.Health != nil {
		kind := statusOK
		detail := fmt.Sprintf("schema v%d, integrity %s", snap.Health.SchemaVersion, snap.Health.IntegrityCheck)
		if snap.Health.Error != "" {
			kind, detail = statusError, snap.Health.Error
		}
		lines = append(lines, renderStatusLine("Database", kind, detail, colorize))
	}
	return lines
}
