package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lumen/internal/ipc"
)

func newMonitorCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newListCommand(ctx),
		newScanCommand(ctx),
		newSetCommand(ctx),
		newContrastCommand(ctx),
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked monitors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.List()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Monitors)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Monitors) == 0 {
					fmt.Fprintln(stdout, "No monitors tracked")
					return nil
				}
				fmt.Fprintln(stdout, renderMonitorTable(resp.Monitors))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var refreshOnly bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Rediscover monitors and re-read their levels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Scan(refreshOnly)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !resp.Ran {
					fmt.Fprintln(stdout, "A scan is already in progress")
					return nil
				}
				if refreshOnly {
					fmt.Fprintln(stdout, "Refresh complete")
				} else {
					fmt.Fprintln(stdout, "Scan complete")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&refreshOnly, "refresh", false, "Only re-read the current targets without rediscovering monitors")
	return cmd
}

func newSetCommand(ctx *commandContext) *cobra.Command {
	var preview bool
	cmd := &cobra.Command{
		Use:   "set <monitor-id> <level>",
		Short: "Set a monitor's brightness (0-100); unison monitors follow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLevel(args[1])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetBrightness(ipc.SetBrightnessRequest{ID: args[0], Level: level, Preview: preview})
				if err != nil {
					return err
				}
				m := resp.Monitor
				fmt.Fprintf(cmd.OutOrStdout(), "%s brightness %d%%\n", monitorLabel(m), m.Brightness)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "Move the level in memory without writing to the monitor")
	return cmd
}

func newContrastCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "contrast <monitor-id> <level>",
		Short: "Set a monitor's contrast (0-100)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLevel(args[1])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetContrast(args[0], level)
				if err != nil {
					return err
				}
				m := resp.Monitor
				contrast := level
				if m.Contrast != nil {
					contrast = *m.Contrast
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s contrast %d%%\n", monitorLabel(m), contrast)
				return nil
			})
		},
	}
}

func parseLevel(raw string) (int, error) {
	level, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if err != nil {
		return 0, fmt.Errorf("invalid level %q: expected a number from 0 to 100", raw)
	}
	if level < 0 || level > 100 {
		return 0, fmt.Errorf("invalid level %d: expected a number from 0 to 100", level)
	}
	return level, nil
}

func monitorLabel(m ipc.Monitor) string {
	name := strings.TrimSpace(m.Name)
	if name == "" || name == m.ID {
		return m.ID
	}
	return fmt.Sprintf("%s (%s)", name, m.ID)
}

func monitorState(m ipc.Monitor) string {
	switch {
	case !m.Accessible:
		return "inaccessible"
	case !m.Controllable:
		return fmt.Sprintf("failing (%d)", m.Failures)
	case !m.Target:
		return "idle"
	default:
		return "active"
	}
}

var monitorColumns = []column{
	{title: "ID"},
	{title: "Name"},
	{title: "Brightness", numeric: true},
	{title: "Slider", numeric: true},
	{title: "Contrast", numeric: true},
	{title: "Range", numeric: true},
	{title: "Unison"},
	{title: "State"},
}

func renderMonitorTable(monitors []ipc.Monitor) string {
	rows := make([][]string, 0, len(monitors))
	for _, m := range monitors {
		contrast := "-"
		if m.Contrast != nil {
			contrast = strconv.Itoa(*m.Contrast)
		}
		rows = append(rows, []string{
			m.ID,
			m.Name,
			strconv.Itoa(m.Brightness),
			strconv.Itoa(m.AdjustedBrightness),
			contrast,
			fmt.Sprintf("%d-%d", m.Lowest, m.Highest),
			yesNo(m.Unison),
			monitorState(m),
		})
	}
	return renderTable(monitorColumns, rows)
}
