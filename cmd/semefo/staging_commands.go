package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"semefo/internal/logging"
	"semefo/internal/media"
	"semefo/internal/preflight"
	"semefo/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect and clean temporary assembly files",
	}
	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))
	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List video2 staging dirs, manifests and partial outputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			leftovers, err := staging.ListLeftovers(cmd.Context(), media.NewLayout(cfg.Paths.StorageRoot))
			if err != nil {
				return err
			}
			if len(leftovers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No temporary files found")
				return nil
			}
			rows := make([][]string, 0, len(leftovers))
			for _, left := range leftovers {
				rows = append(rows, []string{
					formatStatusLabel(left.Kind),
					preflight.FormatBytes(uint64(left.Size)),
					time.Since(left.ModTime).Truncate(time.Minute).String(),
					left.Path,
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Type", "Size", "Age", "Path"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove temporary files older than the configured age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if maxAge <= 0 {
				maxAge = time.Duration(cfg.Workflow.StaleTempHours) * time.Hour
			}
			result := staging.CleanStale(cmd.Context(), media.NewLayout(cfg.Paths.StorageRoot), maxAge, logging.NewNop())
			out := cmd.OutOrStdout()
			for _, path := range result.Removed {
				fmt.Fprintf(out, "Removed %s\n", path)
			}
			for _, failure := range result.Errors {
				fmt.Fprintf(out, "Failed %s: %v\n", failure.Path, failure.Error)
			}
			fmt.Fprintf(out, "Removed %d item(s) older than %s\n", len(result.Removed), maxAge)
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d item(s) could not be removed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "older-than", 0, "Minimum age to remove (default workflow.stale_temp_hours)")
	return cmd
}
