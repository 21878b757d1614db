package chorus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// Result reports what the detector located.
type Result struct {
	// StartSec is the offset of the located chorus in the source signal.
	StartSec float64
	// Found is false when the detector ran successfully but could not
	// locate a chorus.
	Found bool
}

// Detector locates and renders a chorus section from a prepared WAV file.
// An empty quality falls back to the client's configured default.
type Detector interface {
	Detect(ctx context.Context, inputPath string, clipSeconds float64, quality string, outputPath string) (Result, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if strings.TrimSpace(binary) != "" {
			c.binary = binary
		}
	}
}

// WithQuality sets the analysis quality hint passed to the detector.
func WithQuality(quality string) Option {
	return func(c *CLI) {
		c.quality = strings.TrimSpace(quality)
	}
}

// CLI wraps the chorus-detect command-line tool. The tool analyzes the input
// WAV, writes the chorus clip to the output path, and reports the located
// offset on stdout as "chorus_start=<seconds>", or "no_chorus" when the
// signal has no detectable chorus.
type CLI struct {
	binary  string
	quality string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "chorus-detect"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Detect launches the detector against inputPath and returns the located
// chorus offset. The clip itself is written to outputPath by the tool.
func (c *CLI) Detect(ctx context.Context, inputPath string, clipSeconds float64, quality string, outputPath string) (Result, error) {
	if strings.TrimSpace(inputPath) == "" {
		return Result{}, errors.New("input path required")
	}
	if strings.TrimSpace(outputPath) == "" {
		return Result{}, errors.New("output path required")
	}
	if clipSeconds <= 0 {
		return Result{}, fmt.Errorf("clip duration must be positive, got %v", clipSeconds)
	}

	args := []string{
		"--input", inputPath,
		"--output", outputPath,
		"--duration", strconv.FormatFloat(clipSeconds, 'f', -1, 64),
	}
	quality = strings.TrimSpace(quality)
	if quality == "" {
		quality = c.quality
	}
	if quality != "" {
		args = append(args, "--quality", quality)
	}

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start chorus-detect: %w", err)
	}

	result := Result{}
	sawVerdict := false
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "chorus_start="):
			value := strings.TrimPrefix(line, "chorus_start=")
			start, parseErr := strconv.ParseFloat(value, 64)
			if parseErr != nil {
				continue
			}
			result = Result{StartSec: start, Found: true}
			sawVerdict = true
		case line == "no_chorus":
			result = Result{}
			sawVerdict = true
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("read chorus-detect output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		return Result{}, fmt.Errorf("chorus-detect failed: %w", err)
	}
	if !sawVerdict {
		return Result{}, errors.New("chorus-detect reported no verdict")
	}
	return result, nil
}

var _ Detector = (*CLI)(nil)
