package main

import (
	"github.com/spf13/cobra"

	"librarian/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var skipPreflight bool
	cmd := &cobra.Command{
		Use:          "daemon",
		Short:        "Run the librarian daemon (internal)",
		Hidden:       true,
		Annotations:  map[string]string{skipConfigAnnotation: "true"},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:      ctx.resolvedLogLevel(cfg),
				SkipPreflight: skipPreflight,
			})
		},
	}
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip startup readiness checks")
	return cmd
}
