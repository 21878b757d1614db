package preflight

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"chorusd/internal/faults"
	"chorusd/internal/logging"
	"chorusd/internal/media"
)

// Config holds the thresholds and policy flags for one validation call. A
// value is immutable once passed in; concurrent validations never share
// mutable state.
type Config struct {
	MinDurationSec       float64
	MaxDurationSec       float64
	LongMode             bool
	MonoRequired         bool
	AllowDownmix         bool
	AllowResample        bool
	MinSampleRate        int
	MaxSampleRate        int
	SilenceThresholdDBFS float64
}

// Outcome is the definite verdict of a validation pass. Metrics are
// populated whenever the asset could be measured, even on rejection.
type Outcome struct {
	OK        bool
	Metrics   media.Metrics
	Rejection *faults.Error
}

// Validator gates assets before extraction is attempted.
type Validator struct {
	prober media.Prober
	logger *slog.Logger
}

// New builds a validator over the given prober.
func New(prober media.Prober, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Validator{
		prober: prober,
		logger: logging.WithComponent(logger, "preflight"),
	}
}

// Validate measures the asset and applies the checks in a fixed order,
// short-circuiting on the first failure. The order is a compatibility
// contract: an asset that is both silent and too long reports too long.
func (v *Validator) Validate(ctx context.Context, identifier, path string, cfg Config) Outcome {
	metrics, err := v.prober.Probe(ctx, path)
	if err != nil {
		// Nothing was measurable, so no metrics are attached.
		if errors.Is(err, os.ErrNotExist) {
			return Outcome{Rejection: faults.FileNotFound(identifier)}
		}
		return Outcome{Rejection: faults.PreflightError(err)}
	}

	if metrics.DurationSec < cfg.MinDurationSec {
		return rejected(faults.TooShort(metrics.DurationSec, cfg.MinDurationSec), metrics)
	}
	if metrics.DurationSec > cfg.MaxDurationSec && !cfg.LongMode {
		return rejected(faults.TooLong(metrics.DurationSec, cfg.MaxDurationSec), metrics)
	}
	if metrics.LoudnessDBFS < cfg.SilenceThresholdDBFS {
		return rejected(faults.SilentOrLowRMS(metrics.LoudnessDBFS, cfg.SilenceThresholdDBFS), metrics)
	}
	if cfg.MonoRequired && metrics.Channels > 1 && !cfg.AllowDownmix {
		return rejected(faults.MonoRequired(metrics.Channels), metrics)
	}
	if (metrics.SampleRate < cfg.MinSampleRate || metrics.SampleRate > cfg.MaxSampleRate) && !cfg.AllowResample {
		return rejected(faults.SampleRateUnsupported(metrics.SampleRate, cfg.MinSampleRate, cfg.MaxSampleRate), metrics)
	}

	v.logger.Debug("preflight passed",
		logging.String(logging.FieldIdentifier, identifier),
		logging.Float64("duration_sec", metrics.DurationSec),
		logging.Int("sample_rate", metrics.SampleRate),
		logging.Int("channels", metrics.Channels),
		logging.Float64("loudness_dbfs", metrics.LoudnessDBFS),
	)
	return Outcome{OK: true, Metrics: metrics}
}

func rejected(fault *faults.Error, metrics media.Metrics) Outcome {
	return Outcome{
		Metrics:   metrics,
		Rejection: fault.WithMetrics(metrics),
	}
}
