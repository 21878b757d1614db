package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"chorusd/internal/logging"
	"chorusd/internal/media"
	"chorusd/internal/services"
	"chorusd/internal/storage"
)

// Result describes the canonical asset handed to the detector.
type Result struct {
	// Path is the canonical asset. When Created is false it is the
	// original path unchanged.
	Path string
	// Created reports whether a transient artifact was written. Callers
	// must remove it when true; there is nothing to remove otherwise.
	Created bool
}

// Normalizer converts assets to the canonical WAV container. It never
// resamples or downmixes; channel and rate policy belongs to preflight.
type Normalizer struct {
	store  *storage.Manager
	binary string
	exec   media.Executor
	logger *slog.Logger
}

// Option configures the normalizer.
type Option func(*Normalizer)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(executor media.Executor) Option {
	return func(n *Normalizer) {
		if executor != nil {
			n.exec = executor
		}
	}
}

// New builds a normalizer that writes transient WAV files through store.
func New(store *storage.Manager, ffmpegBinary string, logger *slog.Logger, opts ...Option) *Normalizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	n := &Normalizer{
		store:  store,
		binary: strings.TrimSpace(ffmpegBinary),
		exec:   media.NewExecutor(),
		logger: logging.WithComponent(logger, "normalize"),
	}
	if n.binary == "" {
		n.binary = "ffmpeg"
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize produces the canonical asset for identifier's source at path.
// A WAV source is returned unchanged with no new artifact. Anything else is
// decoded at its native sample rate and channel layout into a transient WAV.
func (n *Normalizer) Normalize(ctx context.Context, identifier, path string) (Result, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return Result{Path: path}, nil
	}

	if err := os.MkdirAll(n.store.Dir(storage.ScopeTransient), 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "normalize", "prepare", "create transient dir", err)
	}
	outputPath := n.store.Allocate(storage.ScopeTransient, identifier, "_normalized.wav")

	args := []string{
		"-hide_banner", "-nostats", "-y",
		"-i", path,
		"-map", "a:0",
		"-c:a", "pcm_s16le",
		outputPath,
	}
	if err := n.exec.Run(ctx, n.binary, args, nil); err != nil {
		os.Remove(outputPath)
		return Result{}, services.Wrap(services.ErrExternalTool, "normalize", "decode", fmt.Sprintf("decode %s", filepath.Base(path)), err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "normalize", "decode", "decoder produced no output", err)
	}

	n.logger.Debug("normalized asset",
		logging.String(logging.FieldIdentifier, identifier),
		logging.String("output", outputPath),
	)
	return Result{Path: outputPath, Created: true}, nil
}
