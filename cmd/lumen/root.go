package main

import (
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	groupMonitors = "monitors"
	groupDaemon   = "daemon"
	groupSetup    = "setup"
)

func newRootCommand() *cobra.Command {
	var socketFlag string
	var configFlag string

	ctx := newCommandContext(&socketFlag, &configFlag)

	rootCmd := &cobra.Command{
		Use:           "lumen",
		Short:         "Keep monitor brightness in step across displays",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
	}
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "Path to the lumen daemon socket")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupMonitors, Title: "Monitor Commands:"},
		&cobra.Group{ID: groupDaemon, Title: "Daemon Commands:"},
		&cobra.Group{ID: groupSetup, Title: "Setup Commands:"},
	)

	addGrouped(rootCmd, groupMonitors, newMonitorCommands(ctx)...)
	addGrouped(rootCmd, groupMonitors,
		newCustomizeCommand(ctx),
		newCustomizationsCommand(ctx),
	)
	addGrouped(rootCmd, groupDaemon, newDaemonCommands(ctx)...)
	addGrouped(rootCmd, groupDaemon,
		newDaemonRunCommand(ctx),
		newStatusCommand(ctx),
	)
	addGrouped(rootCmd, groupSetup, newConfigCommand(ctx))

	return rootCmd
}

func addGrouped(parent *cobra.Command, group string, cmds ...*cobra.Command) {
	for _, cmd := range cmds {
		cmd.GroupID = group
		parent.AddCommand(cmd)
	}
}
