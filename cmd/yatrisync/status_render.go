package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"yatrisync/internal/ipc"
	"yatrisync/internal/network"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 16
	statusIndent     = "  "
)

var statusLabels = map[statusKind]string{
	statusInfo:  "INFO",
	statusOK:    "OK",
	statusWarn:  "WARN",
	statusError: "ERROR",
}

var statusColors = map[statusKind]string{
	statusInfo:  ansiBlue,
	statusOK:    ansiGreen,
	statusWarn:  ansiYellow,
	statusError: ansiRed,
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	badge := "[" + statusLabels[kind] + "]"
	if message != "" {
		badge += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", badge)
	if colorize {
		return statusColors[kind] + line + ansiReset
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		return []string{ansiBlue + line + ansiReset, ansiBlue + rule + ansiReset}
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

var titleCase = cases.Title(language.Und)

// transportLabel turns a transport name such as "ethernet" into "Ethernet".
func transportLabel(t network.Transport) string {
	switch t {
	case network.TransportWiFi:
		return "Wi-Fi"
	case network.TransportVPN:
		return "VPN"
	case "":
		return "Unknown"
	}
	return titleCase.String(string(t))
}

func networkLine(state ipc.NetworkState, colorize bool) string {
	detail := transportLabel(state.Transport)
	if len(state.Interfaces) > 0 {
		detail += " (" + strings.Join(state.Interfaces, ", ") + ")"
	}
	if state.Connected {
		return renderStatusLine("Network", statusOK, "Online via "+detail, colorize)
	}
	return renderStatusLine("Network", statusWarn, "Offline", colorize)
}

func syncLine(last *ipc.SyncResult, at int64, inProgress bool, colorize bool) string {
	if inProgress {
		return renderStatusLine("Last Sync", statusInfo, "Pass in progress", colorize)
	}
	if last == nil {
		return renderStatusLine("Last Sync", statusInfo, "No pass since daemon start", colorize)
	}
	when := ""
	if at > 0 {
		when = " at " + time.UnixMilli(at).Format(time.DateTime)
	}
	detail := fmt.Sprintf("%s%s: %d replayed, %d failed, %d dropped", last.Outcome, when, last.Replayed, last.Failed, last.Dropped)
	switch {
	case last.Error != "":
		return renderStatusLine("Last Sync", statusError, detail+" ("+last.Error+")", colorize)
	case last.Failed > 0 || last.Dropped > 0:
		return renderStatusLine("Last Sync", statusWarn, detail, colorize)
	default:
		return renderStatusLine("Last Sync", statusOK, detail, colorize)
	}
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).Format(time.DateTime)
}
