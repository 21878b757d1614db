package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chorusd/internal/config"
	"chorusd/internal/deps"
)

func newStatusCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check dependencies and storage directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, renderSectionHeader("Configuration", colorize))
			if exists {
				fmt.Fprintln(out, renderStatusLine("Config file", statusOK, path, colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Config file", statusWarn, fmt.Sprintf("%s (not found, using defaults)", path), colorize))
			}
			fmt.Fprintln(out, renderStatusLine("API bind", statusInfo, cfg.Paths.APIBind, colorize))
			fmt.Fprintln(out)

			fmt.Fprintln(out, renderSectionHeader("Dependencies", colorize))
			healthy := true
			for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
				kind := statusOK
				message := status.Command
				if !status.Available {
					message = status.Detail
					if status.Optional {
						kind = statusWarn
					} else {
						kind = statusError
						healthy = false
					}
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, message, colorize))
			}
			fmt.Fprintln(out)

			fmt.Fprintln(out, renderSectionHeader("Directories", colorize))
			for _, result := range deps.CheckDirectories(cfg) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
					healthy = false
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			if !healthy {
				return fmt.Errorf("one or more checks failed")
			}
			return nil
		},
	}
}
