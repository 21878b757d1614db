package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"chorusd/internal/faults"
	"chorusd/internal/fileutil"
	"chorusd/internal/logging"
	"chorusd/internal/media"
	"chorusd/internal/normalize"
	"chorusd/internal/preflight"
	"chorusd/internal/services/chorus"
	"chorusd/internal/storage"
)

// Request carries the caller's extraction parameters.
type Request struct {
	// TargetDurationSec is the desired clip length. Zero means use the
	// configured default.
	TargetDurationSec int
	// Quality is threaded through to the detector as an accuracy/speed
	// hint.
	Quality string
	// LongMode, AllowDownmix, and AllowResample are forwarded to
	// validation, overriding the configured policy for this request only.
	LongMode      bool
	AllowDownmix  bool
	AllowResample bool
}

// Result reports a finished extraction.
type Result struct {
	Identifier     string        `json:"identifier"`
	ChorusStartSec float64       `json:"chorus_start_sec"`
	OutputPath     string        `json:"-"`
	Metrics        media.Metrics `json:"metrics"`
}

// Settings holds the orchestrator's tunables, fixed at construction.
type Settings struct {
	Validation       preflight.Config
	MinTargetSec     int
	MaxTargetSec     int
	DefaultTargetSec int
	DetectTimeout    time.Duration
}

// Orchestrator drives one extraction from validated intake file to finished
// clip. Stages always run in order: validate, normalize, detect, publish.
// Transient artifacts from normalization are removed on every exit path.
type Orchestrator struct {
	settings  Settings
	validator *preflight.Validator
	norm      *normalize.Normalizer
	detector  chorus.Detector
	store     *storage.Manager
	pool      *Pool
	logger    *slog.Logger
}

// New wires an orchestrator.
func New(settings Settings, validator *preflight.Validator, norm *normalize.Normalizer, detector chorus.Detector, store *storage.Manager, pool *Pool, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		settings:  settings,
		validator: validator,
		norm:      norm,
		detector:  detector,
		store:     store,
		pool:      pool,
		logger:    logging.WithComponent(logger, "extraction"),
	}
}

// Extract runs the full pipeline for identifier's intake file. Any error is
// a classified fault; callers can map it straight to a transport status.
func (o *Orchestrator) Extract(ctx context.Context, identifier string, req Request) (Result, error) {
	target := req.TargetDurationSec
	if target == 0 {
		target = o.settings.DefaultTargetSec
	}
	if target < o.settings.MinTargetSec || target > o.settings.MaxTargetSec {
		return Result{}, faults.InvalidDuration(float64(target), float64(o.settings.MinTargetSec), float64(o.settings.MaxTargetSec))
	}

	sourcePath, err := o.store.Resolve(storage.ScopeIntake, identifier)
	if err != nil {
		return Result{}, faults.FileNotFound(identifier)
	}

	cfg := o.settings.Validation
	if req.LongMode {
		cfg.LongMode = true
	}
	if req.AllowDownmix {
		cfg.AllowDownmix = true
	}
	if req.AllowResample {
		cfg.AllowResample = true
	}

	// Probing decodes the full signal, so it takes a pool slot like
	// detection does.
	var outcome preflight.Outcome
	if err := o.pool.Do(ctx, func() error {
		outcome = o.validator.Validate(ctx, identifier, sourcePath, cfg)
		return nil
	}); err != nil {
		return Result{}, faults.ExtractionFailed(err)
	}
	if !outcome.OK {
		return Result{}, outcome.Rejection
	}

	canonical, err := o.norm.Normalize(ctx, identifier, sourcePath)
	if err != nil {
		// Some detectors consume compressed containers directly, so a
		// failed decode falls back to the original asset.
		o.logger.Warn("normalization failed, using original asset",
			logging.String(logging.FieldIdentifier, identifier),
			logging.Error(err),
		)
		canonical = normalize.Result{Path: sourcePath}
	}
	defer func() {
		if canonical.Created {
			removeQuietly(canonical.Path)
		}
	}()

	if err := os.MkdirAll(o.store.Dir(storage.ScopeTransient), 0o755); err != nil {
		return Result{}, faults.ExtractionFailed(err)
	}
	// The detector renders into the transient scope; the clip only appears
	// in the output scope once it is complete and verified.
	clipPath := o.store.Allocate(storage.ScopeTransient, identifier, "_clip.wav")
	defer removeQuietly(clipPath)

	detection, err := o.runDetection(ctx, canonical.Path, float64(target), req.Quality, clipPath)
	if err != nil {
		return Result{}, faults.ExtractionFailed(err).WithMetrics(outcome.Metrics)
	}
	if !detection.Found {
		return Result{}, faults.NoChorusFound(identifier).WithMetrics(outcome.Metrics)
	}
	if detection.StartSec < 0 || detection.StartSec >= outcome.Metrics.DurationSec {
		return Result{}, faults.ExtractionFailed(
			fmt.Errorf("detector reported offset %.2fs outside the asset's %.2fs duration", detection.StartSec, outcome.Metrics.DurationSec),
		).WithMetrics(outcome.Metrics)
	}

	if err := os.MkdirAll(o.store.Dir(storage.ScopeOutput), 0o755); err != nil {
		return Result{}, faults.ExtractionFailed(err)
	}
	outputPath := o.store.Allocate(storage.ScopeOutput, identifier, ".wav")
	if err := fileutil.CopyFileVerified(clipPath, outputPath); err != nil {
		return Result{}, faults.ExtractionFailed(err).WithMetrics(outcome.Metrics)
	}

	o.logger.Info("extraction complete",
		logging.String(logging.FieldIdentifier, identifier),
		logging.Float64("chorus_start_sec", detection.StartSec),
		logging.String("output", outputPath),
	)
	return Result{
		Identifier:     identifier,
		ChorusStartSec: detection.StartSec,
		OutputPath:     outputPath,
		Metrics:        outcome.Metrics,
	}, nil
}

type detectReply struct {
	result chorus.Result
	err    error
}

// runDetection dispatches the detector through the pool and waits for its
// result. The timeout bounds only the wait: a run that has already started is
// never preempted, and when the wait is abandoned the run finishes on its own
// slot and its clip is removed once it lands.
func (o *Orchestrator) runDetection(ctx context.Context, inputPath string, clipSeconds float64, quality, clipPath string) (chorus.Result, error) {
	replies := make(chan detectReply, 1)
	go func() {
		var result chorus.Result
		err := o.pool.Do(ctx, func() error {
			var detectErr error
			result, detectErr = o.detector.Detect(context.WithoutCancel(ctx), inputPath, clipSeconds, quality, clipPath)
			return detectErr
		})
		replies <- detectReply{result: result, err: err}
	}()

	var expired <-chan time.Time
	if o.settings.DetectTimeout > 0 {
		timer := time.NewTimer(o.settings.DetectTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case reply := <-replies:
		return reply.result, reply.err
	case <-expired:
		o.abandonDetection(replies, clipPath)
		return chorus.Result{}, fmt.Errorf("no detector result within %s", o.settings.DetectTimeout)
	case <-ctx.Done():
		o.abandonDetection(replies, clipPath)
		return chorus.Result{}, ctx.Err()
	}
}

// abandonDetection collects the straggling run in the background so its clip
// does not outlive the request it belonged to.
func (o *Orchestrator) abandonDetection(replies <-chan detectReply, clipPath string) {
	go func() {
		<-replies
		removeQuietly(clipPath)
	}()
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}
