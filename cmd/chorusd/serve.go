package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chorusd/internal/config"
	"chorusd/internal/deps"
	"chorusd/internal/extraction"
	"chorusd/internal/ingest"
	"chorusd/internal/jobs"
	"chorusd/internal/logging"
	"chorusd/internal/media"
	"chorusd/internal/normalize"
	"chorusd/internal/preflight"
	"chorusd/internal/server"
	"chorusd/internal/services/chorus"
	"chorusd/internal/storage"
)

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the extraction service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			logger, err := logging.New(logging.Options{
				Level:            cfg.Logging.Level,
				Format:           cfg.Logging.Format,
				OutputPaths:      []string{"stdout", filepath.Join(cfg.Paths.LogDir, "chorusd.log")},
				ErrorOutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}

			for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
				if !status.Available && !status.Optional {
					return fmt.Errorf("missing required dependency %s: %s", status.Name, status.Detail)
				}
			}

			store := storage.NewManager(cfg.IntakeDir(), cfg.OutputDir(), cfg.TransientDir(), logger)
			intake := ingest.NewIntake(store, cfg.Ingest.AllowedExtensions, cfg.MaxUploadBytes(), logger)

			prober := media.NewProber(cfg.Tools.FFmpeg, cfg.Tools.FFprobe)
			validator := preflight.New(prober, logger)
			normalizer := normalize.New(store, cfg.Tools.FFmpeg, logger)
			detector := chorus.NewCLI(
				chorus.WithBinary(cfg.Tools.Detector),
				chorus.WithQuality(cfg.Extraction.DefaultQuality),
			)
			pool := extraction.NewPool(cfg.Extraction.Workers, cfg.Extraction.QueueDepth)
			orchestrator := extraction.New(extraction.Settings{
				Validation: preflight.Config{
					MinDurationSec:       cfg.Validation.MinDurationSec,
					MaxDurationSec:       cfg.Validation.MaxDurationSec,
					LongMode:             cfg.Validation.LongMode,
					MonoRequired:         cfg.Validation.MonoRequired,
					AllowDownmix:         cfg.Validation.AllowDownmix,
					AllowResample:        cfg.Validation.AllowResample,
					MinSampleRate:        cfg.Validation.MinSampleRate,
					MaxSampleRate:        cfg.Validation.MaxSampleRate,
					SilenceThresholdDBFS: cfg.Validation.SilenceThresholdDBFS,
				},
				MinTargetSec:     cfg.Extraction.MinDurationSec,
				MaxTargetSec:     cfg.Extraction.MaxDurationSec,
				DefaultTargetSec: cfg.Extraction.DefaultDurationSec,
				DetectTimeout:    time.Duration(cfg.Extraction.DetectTimeout) * time.Second,
			}, validator, normalizer, detector, store, pool, logger)

			jobsStore, err := jobs.Open(jobsDBPath(cfg))
			if err != nil {
				return fmt.Errorf("open jobs store: %w", err)
			}
			defer jobsStore.Close()

			srv, err := server.New(cfg, intake, orchestrator, store, jobsStore, logger)
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := srv.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			srv.Stop()
			return nil
		},
	}
}

func jobsDBPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "jobs.db")
}
