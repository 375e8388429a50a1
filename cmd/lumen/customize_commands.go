package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"lumen/internal/ipc"
)

func newCustomizeCommand(ctx *commandContext) *cobra.Command {
	var (
		name    string
		unison  bool
		lowest  uint8
		highest uint8
		reset   bool
	)
	cmd := &cobra.Command{
		Use:   "customize <monitor-id>",
		Short: "Name a monitor, bound its brightness range, or join it to unison",
		Long: "Flags that are not given keep their stored value. A range with lowest >= highest,\n" +
			"or values that all match the defaults, clear the stored customization.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				custom := ipc.Customization{ID: id, Highest: 100}
				if !reset {
					loaded, err := client.LoadCustomization(id)
					if err != nil {
						return err
					}
					if loaded.Found {
						custom = loaded.Customization
						custom.ID = id
					}
					flags := cmd.Flags()
					if flags.Changed("name") {
						custom.Name = strings.TrimSpace(name)
					}
					if flags.Changed("unison") {
						custom.Unison = unison
					}
					if flags.Changed("lowest") {
						custom.Lowest = lowest
					}
					if flags.Changed("highest") {
						custom.Highest = highest
					}
				}
				resp, err := client.SaveCustomization(custom)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !resp.Stored {
					fmt.Fprintf(stdout, "Customization for %s cleared\n", id)
					return nil
				}
				fmt.Fprintf(stdout, "Customization for %s stored: range %d-%d, unison %s\n",
					id, custom.Lowest, custom.Highest, yesNo(custom.Unison))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name for the monitor")
	cmd.Flags().BoolVar(&unison, "unison", false, "Follow brightness changes made on other unison monitors")
	cmd.Flags().Uint8Var(&lowest, "lowest", 0, "Hardware level shown as 0 on the slider")
	cmd.Flags().Uint8Var(&highest, "highest", 100, "Hardware level shown as 100 on the slider (at most 100)")
	cmd.Flags().BoolVar(&reset, "clear", false, "Remove the stored customization")
	return cmd
}

func newCustomizationsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customizations",
		Short: "List, export, or import stored customizations",
	}

	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored customizations, most recently used first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ListCustomizations()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Customizations)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Customizations) == 0 {
					fmt.Fprintln(stdout, "No customizations stored")
					return nil
				}
				rows := make([][]string, 0, len(resp.Customizations))
				for _, c := range resp.Customizations {
					updated := "-"
					if !c.UpdatedAt.IsZero() {
						updated = humanize.Time(c.UpdatedAt)
					}
					rows = append(rows, []string{
						c.ID,
						c.Name,
						fmt.Sprintf("%d-%d", c.Lowest, c.Highest),
						yesNo(c.Unison),
						updated,
					})
				}
				fmt.Fprintln(stdout, renderTable([]column{
					{title: "ID"},
					{title: "Name"},
					{title: "Range", numeric: true},
					{title: "Unison"},
					{title: "Updated"},
				}, rows))
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	var outputPath string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored customizations as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ExportCustomizations()
				if err != nil {
					return err
				}
				if path := strings.TrimSpace(outputPath); path != "" && path != "-" {
					if err := os.WriteFile(path, []byte(resp.Document), 0o644); err != nil {
						return fmt.Errorf("write export: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote customizations to %s\n", path)
					return nil
				}
				_, err = io.WriteString(cmd.OutOrStdout(), resp.Document)
				return err
			})
		},
	}
	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination file (default stdout)")

	importCmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Apply a YAML export; invalid entries clear the matching customization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			document, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ImportCustomizations(document)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d customizations (%d cleared)\n", resp.Stored, resp.Cleared)
				return nil
			})
		},
	}

	cmd.AddCommand(listCmd, exportCmd, importCmd)
	return cmd
}

func readDocument(cmd *cobra.Command, source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", errors.New("import source is required")
	}
	var (
		data []byte
		err  error
	)
	if source == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return "", fmt.Errorf("read import: %w", err)
	}
	return string(data), nil
}
