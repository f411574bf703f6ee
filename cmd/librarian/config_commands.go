package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"librarian/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check the configuration file",
	}
	configCmd.AddCommand(newConfigInitCommand(ctx), newConfigValidateCommand(ctx))
	return configCmd
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath, ctx.configPath())
			if err != nil {
				return err
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("check %s: %w", target, statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Fill in [torrent] and [organizer] (or export QBIT_URL), then run librarian start.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

// initTarget prefers --path, then the global --config, then the default
// location.
func initTarget(pathFlag, configFlag string) (string, error) {
	for _, candidate := range []string{pathFlag, configFlag} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			expanded, err := config.ExpandPath(candidate)
			if err != nil {
				return "", fmt.Errorf("resolve %q: %w", candidate, err)
			}
			return expanded, nil
		}
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("determine default config path: %w", err)
	}
	return path, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and report what it resolves to",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file not found; built-in defaults apply")
			}
			target := cfg.Organizer.Target
			if cfg.RemoteEnabled() {
				target += " (" + cfg.Remote.Host + ")"
			}
			fmt.Fprintf(out, "Organizer target: %s\n", target)
			fmt.Fprintf(out, "Path mappings: %d\n", len(cfg.PathMappings))
			fmt.Fprintf(out, "Ledger: %s\n", cfg.DatabasePath())
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
