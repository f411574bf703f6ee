package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"librarian/internal/api"
	"librarian/internal/ipc"
	"librarian/internal/textutil"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and retry organizer jobs",
	}

	var statuses []string
	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List organizer jobs, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobList(splitFilters(statuses))
				if err != nil {
					return err
				}
				if listJSON {
					return writeJSON(cmd.OutOrStdout(), resp.Jobs)
				}
				out := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(out, "No organizer jobs found")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					columns("Hash", "Status", "Target", "Name", "Request", "Error"),
					buildJobRows(resp.Jobs),
				))
				return nil
			})
		},
	}
	listCmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable or comma separated)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	clearCmd := &cobra.Command{
		Use:   "clear <hash>",
		Short: "Remove a failed organizer job so the monitor retries it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.JobClear(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared organizer job %s; it will be retried on the next monitor tick\n", args[0])
				return nil
			})
		},
	}

	jobsCmd.AddCommand(listCmd, clearCmd)
	return jobsCmd
}

func buildJobRows(jobs []api.JobView) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.Hash,
			job.Status,
			job.Target,
			textutil.Truncate(job.Name, 40),
			job.RequestID,
			textutil.Truncate(job.Error, 60),
		})
	}
	return rows
}
