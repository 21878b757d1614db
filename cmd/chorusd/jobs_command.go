package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"chorusd/internal/config"
	"chorusd/internal/jobs"
)

func newJobsCommand(configFlag *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recorded extraction jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			dbPath := jobsDBPath(cfg)
			if _, err := os.Stat(dbPath); os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded yet.")
				return nil
			}

			store, err := jobs.Open(dbPath)
			if err != nil {
				return fmt.Errorf("open jobs store: %w", err)
			}
			defer store.Close()

			listed, err := store.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}
			if len(listed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded yet.")
				return nil
			}

			rows := make([][]string, 0, len(listed))
			for _, job := range listed {
				start := ""
				if job.ChorusStartSec != nil {
					start = fmt.Sprintf("%.1f", *job.ChorusStartSec)
				}
				detail := job.FaultKind
				if detail == "" {
					detail = job.Detail
				}
				rows = append(rows, []string{
					job.Identifier,
					job.Filename,
					string(job.Status),
					start,
					job.UpdatedAt.Local().Format(time.DateTime),
					detail,
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Identifier", "Filename", "Status", "Start (s)", "Updated", "Detail"},
				rows,
				3,
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of jobs to show")
	return cmd
}
