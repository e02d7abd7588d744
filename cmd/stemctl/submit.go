package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"stemd/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var model string
	var format string
	var normalize bool

	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit audio for stem separation",
	}
	submitCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "Separation model (defaults to the configured model)")
	submitCmd.PersistentFlags().StringVarP(&format, "format", "f", "", "Stem output format, wav or mp3")
	submitCmd.PersistentFlags().BoolVar(&normalize, "normalize", false, "Rescale clipped output")

	opts := func() api.SubmitOptions {
		return api.SubmitOptions{Model: model, OutputFormat: format, Normalize: normalize}
	}

	fileCmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Submit a local audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService(cmd.Context())
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path %q: %w", args[0], err)
			}
			job, err := svc.CreateJobFromFile(cmd.Context(), path, opts())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued (estimated %ds)\n", job.ID, job.EstimatedDuration)
			return nil
		},
	}

	urlCmd := &cobra.Command{
		Use:   "url <url>",
		Short: "Submit a remote audio source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService(cmd.Context())
			if err != nil {
				return err
			}
			job, err := svc.CreateJobFromURL(cmd.Context(), args[0], opts())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued (estimated %ds)\n", job.ID, job.EstimatedDuration)
			return nil
		},
	}

	submitCmd.AddCommand(fileCmd)
	submitCmd.AddCommand(urlCmd)
	return submitCmd
}
