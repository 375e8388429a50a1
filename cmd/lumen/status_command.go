package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"lumen/internal/ipc"
	"lumen/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, environment, and monitor status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			checks := preflight.RunAll(cmd.Context(), cfg)

			var status *ipc.StatusResponse
			dialErr := ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				status = resp
				return nil
			})

			if asJSON {
				return writeJSON(cmd, statusDocument{Daemon: status, Checks: checks})
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			writeLines(stdout, renderSectionHeader("Daemon", colorize))
			writeLines(stdout, daemonLines(status, dialErr, colorize, time.Now()))
			fmt.Fprintln(stdout)

			writeLines(stdout, renderSectionHeader("Environment", colorize))
			writeLines(stdout, checkLines(checks, colorize))

			if status == nil {
				return nil
			}
			fmt.Fprintln(stdout)
			writeLines(stdout, renderSectionHeader("Monitors", colorize))
			if len(status.Monitors) == 0 {
				fmt.Fprintln(stdout, "No monitors tracked")
				return nil
			}
			fmt.Fprintln(stdout, renderMonitorTable(status.Monitors))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

type statusDocument struct {
	Daemon *ipc.StatusResponse `json:"daemon"`
	Checks []preflight.Result  `json:"checks"`
}

func writeLines(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

func daemonLines(status *ipc.StatusResponse, dialErr error, colorize bool, now time.Time) []string {
	if status == nil {
		detail := "Not running"
		if dialErr != nil {
			detail = dialErr.Error()
		}
		return []string{renderStatusLine("Lumen", statusError, detail, colorize)}
	}

	lines := make([]string, 0, 8)
	if status.Running {
		uptime := strings.TrimSpace(humanize.RelTime(status.StartedAt, now, "", ""))
		lines = append(lines, renderStatusLine("Lumen", statusOK, fmt.Sprintf("Running (pid %d, up %s)", status.PID, uptime), colorize))
	} else {
		lines = append(lines, renderStatusLine("Lumen", statusWarn, "Process up, engine stopped", colorize))
	}

	switch {
	case status.Scanning:
		lines = append(lines, renderStatusLine("Scan", statusInfo, "In progress", colorize))
	case status.LastScan != nil:
		scan := status.LastScan
		detail := fmt.Sprintf("%s, %d found, %d controllable, took %s",
			humanize.Time(scan.Started), scan.Enumerated, scan.Controllable, scan.Duration.Round(time.Millisecond))
		kind := statusOK
		if scan.Fallback || scan.Failed > 0 {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine("Last scan", kind, detail, colorize))
	default:
		lines = append(lines, renderStatusLine("Last scan", statusInfo, "None yet", colorize))
	}
	lines = append(lines, renderStatusLine("Scans", statusInfo,
		fmt.Sprintf("%s completed, %s dropped", humanize.Comma(int64(status.ScansCompleted)), humanize.Comma(int64(status.ScansDropped))), colorize))
	lines = append(lines, renderStatusLine("Max targets", statusInfo, strconv.Itoa(status.MaxTargets), colorize))
	lines = append(lines, renderStatusLine("Customizations", statusInfo, strconv.Itoa(status.Customizations), colorize))
	for _, w := range status.Watchers {
		kind, detail := statusOK, "Connected"
		if !w.Running {
			kind, detail = statusWarn, "Unavailable (periodic check only)"
		}
		lines = append(lines, renderStatusLine("Watcher "+w.Name, kind, detail, colorize))
	}
	lines = append(lines, renderStatusLine("Session locked", statusInfo, yesNo(status.SessionLocked), colorize))
	return lines
}

func checkLines(checks []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(checks))
	for _, check := range checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	return lines
}
