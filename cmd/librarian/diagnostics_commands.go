package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"librarian/internal/ipc"
)

// newTranslateCommand asks the running daemon to rewrite a path with its
// loaded mapping table, so operators can check mappings before a download
// completes.
func newTranslateCommand(ctx *commandContext) *cobra.Command {
	var direction string
	cmd := &cobra.Command{
		Use:   "translate <path>",
		Short: "Rewrite a path between the torrent client's and organizer's views",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ipc.ParseDirection(direction); err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Translate(args[0], direction)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&direction, "to", "organizer", "Target view: organizer or torrent")
	return cmd
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Publish a test message to the configured ntfy topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				message := strings.TrimSpace(resp.Message)
				if message == "" {
					message = "Notification not sent"
					if resp.Sent {
						message = "Test notification sent"
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), message)
				return nil
			})
		},
	}
}
