package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var socketFlag string
	var configFlag string
	var logLevelFlag string

	ctx := newCommandContext(&socketFlag, &configFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "librarian",
		Short:         "Book request lifecycle daemon and CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "Path to the librarian daemon socket")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override the configured log level")

	for _, cmd := range newDaemonCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range newDecisionCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}

	rootCmd.AddCommand(newDaemonRunCommand(ctx))
	rootCmd.AddCommand(newRequestsCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newTranslateCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newTestNotifyCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
