package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"stemd/internal/api"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job's full state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService(cmd.Context())
			if err != nil {
				return err
			}
			view, err := svc.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJobView(cmd.OutOrStdout(), view)
			return nil
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all jobs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService(cmd.Context())
			if err != nil {
				return err
			}
			views, err := svc.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			if len(views) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}
			rows := make([][]string, 0, len(views))
			for _, view := range views {
				rows = append(rows, []string{
					view.ID,
					string(view.Status),
					strconv.Itoa(view.Progress) + "%",
					string(view.InputType),
					view.Model,
					view.CreatedAt.Local().Format(time.DateTime),
				})
			}
			writeColumns(cmd.OutOrStdout(), []column{
				{name: "ID"},
				{name: "Status"},
				{name: "Progress", numeric: true},
				{name: "Input"},
				{name: "Model"},
				{name: "Created"},
			}, rows)
			return nil
		},
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.DeleteJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s deleted\n", args[0])
			return nil
		},
	}
}

func printJobView(out io.Writer, view api.JobView) {
	fmt.Fprintf(out, "ID:        %s\n", view.ID)
	fmt.Fprintf(out, "Status:    %s\n", view.Status)
	fmt.Fprintf(out, "Progress:  %d%%\n", view.Progress)
	fmt.Fprintf(out, "Input:     %s (%s)\n", view.InputSource, view.InputType)
	fmt.Fprintf(out, "Model:     %s\n", view.Model)
	fmt.Fprintf(out, "Created:   %s\n", view.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Updated:   %s\n", view.UpdatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Estimated: %ds\n", view.EstimatedDuration)
	if view.ActualDuration > 0 {
		fmt.Fprintf(out, "Actual:    %ds\n", view.ActualDuration)
	}
	if view.Error != "" {
		fmt.Fprintf(out, "Error:     %s (%s)\n", view.Error, view.ErrorKind)
	}
	if view.Result != nil {
		fmt.Fprintf(out, "Output:    %s\n", view.Result.OutputDir)
		for _, stem := range []struct {
			name string
			size int64
		}{
			{"vocals", view.Result.Stems.Vocals.Size},
			{"drums", view.Result.Stems.Drums.Size},
			{"bass", view.Result.Stems.Bass.Size},
			{"other", view.Result.Stems.Other.Size},
		} {
			fmt.Fprintf(out, "  %-7s %d bytes\n", stem.name, stem.size)
		}
	}
}
