package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue occupancy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := svc.QueueStatus(cmd.Context())
			if err != nil {
				return err
			}
			writeColumns(cmd.OutOrStdout(), []column{
				{name: "Queued", numeric: true},
				{name: "Active", numeric: true},
				{name: "Total", numeric: true},
			}, [][]string{{
				strconv.FormatInt(counts.Queued, 10),
				strconv.FormatInt(counts.Active, 10),
				strconv.FormatInt(counts.Total, 10),
			}})
			return nil
		},
	}
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete jobs older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService(cmd.Context())
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			retention := cfg.Retention()
			if olderThanDays > 0 {
				retention = time.Duration(olderThanDays) * 24 * time.Hour
			}
			deleted, err := svc.Cleanup(cmd.Context(), retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d job(s)\n", deleted)
			return nil
		},
	}
	cmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Override retention window in days")
	return cmd
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService(cmd.Context())
			if err != nil {
				return err
			}
			health := svc.Health(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status: %s\n", health.Status)
			fmt.Fprintf(out, "Store:  %s\n", okLabel(health.Store))

			binaries := make([]string, 0, len(health.Binaries))
			for binary := range health.Binaries {
				binaries = append(binaries, binary)
			}
			sort.Strings(binaries)
			for _, binary := range binaries {
				fmt.Fprintf(out, "Binary: %-10s %s\n", binary, okLabel(health.Binaries[binary]))
			}
			for _, model := range health.Models {
				fmt.Fprintf(out, "Model:  %s\n", model)
			}
			return nil
		},
	}
}

func okLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "unavailable"
}
