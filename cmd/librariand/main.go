// Command librariand runs the librarian daemon in the foreground, for use
// under a service manager.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"librarian/internal/config"
	"librarian/internal/daemonrun"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var configPath string
	var logLevel string
	var skipPreflight bool
	cmd := &cobra.Command{
		Use:           "librariand",
		Short:         "Run the librarian daemon in the foreground",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:      logLevel,
				SkipPreflight: skipPreflight,
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip startup readiness checks")
	return cmd
}
