package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"librarian/internal/api"
	"librarian/internal/ipc"
	"librarian/internal/textutil"
)

func newRequestsCommand(ctx *commandContext) *cobra.Command {
	requestsCmd := &cobra.Command{
		Use:   "requests",
		Short: "Inspect and repair book requests",
	}

	var states []string
	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List requests, optionally filtered by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RequestList(splitFilters(states))
				if err != nil {
					return err
				}
				if listJSON {
					return writeJSON(cmd.OutOrStdout(), resp.Requests)
				}
				out := cmd.OutOrStdout()
				if len(resp.Requests) == 0 {
					fmt.Fprintln(out, "No requests found")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					numeric(columns("ID", "State", "User", "Title", "Seeders", "Updated"), "Seeders"),
					buildRequestRows(resp.Requests),
				))
				return nil
			})
		},
	}
	listCmd.Flags().StringSliceVar(&states, "state", nil, "Filter by state (repeatable or comma separated)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	var showJSON bool
	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request with its approval, torrent, and organizer records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RequestDescribe(args[0])
				if err != nil {
					return err
				}
				if showJSON {
					return writeJSON(cmd.OutOrStdout(), resp.Detail)
				}
				renderRequestDetail(cmd.OutOrStdout(), resp.Detail)
				return nil
			})
		},
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	bindCmd := &cobra.Command{
		Use:   "bind <id> <hash>",
		Short: "Attach a torrent hash to a request whose submission could not be resolved",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RequestBind(args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Request %s bound to %s (%s)\n", resp.Request.ID, strings.ToLower(args[1]), resp.Request.State)
				return nil
			})
		},
	}

	requestsCmd.AddCommand(listCmd, showCmd, bindCmd)
	return requestsCmd
}

func newDecisionCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newDecisionCommand(ctx, "approve", "approved", "Approve a pending request by its approval message handle"),
		newDecisionCommand(ctx, "deny", "denied", "Deny a pending request by its approval message handle"),
	}
}

func newDecisionCommand(ctx *commandContext, use, outcome, short string) *cobra.Command {
	var decider string
	cmd := &cobra.Command{
		Use:   use + " <handle>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Decide(api.ApprovalPayload{
					MessageHandle: args[0],
					Outcome:       outcome,
					DeciderID:     deciderID(decider),
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				result := resp.Result
				switch {
				case result.AlreadyDecided:
					fmt.Fprintf(out, "Approval %s was already decided\n", args[0])
				case result.Queued:
					fmt.Fprintf(out, "Request %s %s; submission queued\n", result.Request.ID, outcome)
				default:
					fmt.Fprintf(out, "Request %s %s (%s)\n", result.Request.ID, outcome, result.Request.State)
				}
				if result.Error != "" {
					return errors.New(result.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&decider, "as", "", "Decider identity recorded with the decision (default $USER)")
	return cmd
}

func deciderID(flag string) string {
	if value := strings.TrimSpace(flag); value != "" {
		return value
	}
	if user := strings.TrimSpace(os.Getenv("USER")); user != "" {
		return user
	}
	return "cli"
}

func buildRequestRows(requests []api.RequestView) [][]string {
	rows := make([][]string, 0, len(requests))
	for _, req := range requests {
		rows = append(rows, []string{
			req.ID,
			req.State,
			req.UserID,
			textutil.Truncate(req.Candidate.Title, 48),
			strconv.Itoa(req.Candidate.Seeders),
			req.UpdatedAt,
		})
	}
	return rows
}

func renderRequestDetail(out io.Writer, detail api.RequestDetail) {
	req := detail.Request
	fmt.Fprintf(out, "Request:   %s\n", req.ID)
	fmt.Fprintf(out, "State:     %s\n", req.State)
	if req.Detail != "" {
		fmt.Fprintf(out, "Detail:    %s\n", req.Detail)
	}
	fmt.Fprintf(out, "User:      %s\n", req.UserID)
	fmt.Fprintf(out, "Title:     %s\n", req.Candidate.Title)
	if req.Candidate.Author != "" {
		fmt.Fprintf(out, "Author:    %s\n", req.Candidate.Author)
	}
	fmt.Fprintf(out, "Media:     %s\n", req.Candidate.MediaType)
	fmt.Fprintf(out, "Seeders:   %d\n", req.Candidate.Seeders)
	fmt.Fprintf(out, "Created:   %s\n", req.CreatedAt)
	fmt.Fprintf(out, "Updated:   %s\n", req.UpdatedAt)

	if a := detail.Approval; a != nil {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Approval:  %s (%s)\n", a.MessageHandle, a.Outcome)
		if a.DeciderID != "" {
			fmt.Fprintf(out, "Decided:   %s by %s\n", a.DecidedAt, a.DeciderID)
		}
	}
	if h := detail.Handle; h != nil {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Torrent:   %s (%s)\n", fallback(h.Hash, "unresolved"), h.Status)
		if h.Detail != "" {
			fmt.Fprintf(out, "           %s\n", h.Detail)
		}
	}
	if j := detail.Job; j != nil {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Organizer: %s on %s\n", j.Status, j.Target)
		fmt.Fprintf(out, "Source:    %s\n", j.SourcePath)
		if j.OrganizedPath != "" {
			fmt.Fprintf(out, "Organized: %s\n", j.OrganizedPath)
		}
		if j.Error != "" {
			fmt.Fprintf(out, "Error:     %s\n", j.Error)
		}
	}
}

func splitFilters(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
