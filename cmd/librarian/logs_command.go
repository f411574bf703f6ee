package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"librarian/internal/ipc"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var match string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines <= 0 {
				return errors.New("--lines must be positive")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				resp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: lines, Match: match})
				if err != nil {
					return err
				}
				for _, line := range resp.Lines {
					fmt.Fprintln(out, line)
				}
				if !follow {
					return nil
				}

				offset := resp.Offset
				runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				for runCtx.Err() == nil {
					next, err := client.LogTail(ipc.LogTailRequest{
						Offset:     offset,
						Follow:     true,
						WaitMillis: 1000,
						Match:      match,
					})
					if err != nil {
						return err
					}
					for _, line := range next.Lines {
						fmt.Fprintln(out, line)
					}
					offset = next.Offset
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new lines")
	cmd.Flags().StringVar(&match, "match", "", "Only show lines containing this text")
	return cmd
}
