package main

import (
	"github.com/danmuck/paisync/internal/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	return newRootCmdWith(wireDeps{})
}

func newRootCmdWith(deps wireDeps) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "pai-sync-time",
		Short:         "Set the alarm panel clock from the host clock",
		Long:          "pai-sync-time connects to the alarm panel, writes the current date and time (optionally in the configured timezone) and disconnects.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), configPath, deps)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "specify path to an alternative configuration file")

	rootCmd.AddCommand(newConfigCmd(&configPath))
	return rootCmd
}
