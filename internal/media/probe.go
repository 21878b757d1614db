package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"chorusd/internal/media/ffprobe"
)

// Prober extracts metrics from an audio asset.
type Prober interface {
	Probe(ctx context.Context, path string) (Metrics, error)
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// Option configures the prober.
type Option func(*FFmpegProber)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(executor Executor) Option {
	return func(p *FFmpegProber) {
		if executor != nil {
			p.exec = executor
		}
	}
}

// FFmpegProber measures audio assets. WAV files are decoded natively;
// everything else goes through ffprobe for container metadata and ffmpeg for
// loudness, both of which decode the full signal downmixed to mono.
type FFmpegProber struct {
	ffmpegBinary  string
	ffprobeBinary string
	exec          Executor
}

// NewProber constructs a prober using the given ffmpeg and ffprobe binaries.
func NewProber(ffmpegBinary, ffprobeBinary string, opts ...Option) *FFmpegProber {
	prober := &FFmpegProber{
		ffmpegBinary:  strings.TrimSpace(ffmpegBinary),
		ffprobeBinary: strings.TrimSpace(ffprobeBinary),
		exec:          commandExecutor{},
	}
	if prober.ffmpegBinary == "" {
		prober.ffmpegBinary = "ffmpeg"
	}
	if prober.ffprobeBinary == "" {
		prober.ffprobeBinary = "ffprobe"
	}
	for _, opt := range opts {
		opt(prober)
	}
	return prober
}

// Probe measures the asset at path. The returned error wraps os.ErrNotExist
// when the file is missing; any other failure means the asset could not be
// opened or decoded.
func (p *FFmpegProber) Probe(ctx context.Context, path string) (Metrics, error) {
	if _, err := os.Stat(path); err != nil {
		return Metrics{}, err
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return probeWAV(path)
	}

	result, err := ffprobe.Inspect(ctx, p.ffprobeBinary, path)
	if err != nil {
		return Metrics{}, err
	}
	stream := result.FirstAudioStream()
	if stream == nil {
		return Metrics{}, errors.New("probe: no audio stream found")
	}

	metrics := Metrics{
		DurationSec: result.DurationSeconds(),
		SampleRate:  stream.Rate(),
		Channels:    stream.Channels,
		Format:      result.ContainerName(),
		Codec:       stream.CodecName,
	}

	loudness, err := p.measureLoudness(ctx, path)
	if err != nil {
		return Metrics{}, err
	}
	metrics.LoudnessDBFS = loudness
	return metrics, nil
}

// measureLoudness decodes the full signal through ffmpeg, downmixed to mono,
// and reads the overall RMS level from the astats filter.
func (p *FFmpegProber) measureLoudness(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-hide_banner", "-nostats",
		"-i", path,
		"-map", "a:0",
		"-ac", "1",
		"-af", "astats=measure_overall=RMS_level:measure_perchannel=none",
		"-f", "null", "-",
	}

	loudness := math.NaN()
	err := p.exec.Run(ctx, p.ffmpegBinary, args, func(line string) {
		if value, ok := parseRMSLevel(line); ok {
			loudness = value
		}
	})
	if err != nil {
		return 0, fmt.Errorf("probe loudness: %w", err)
	}
	if math.IsNaN(loudness) {
		return 0, errors.New("probe loudness: astats reported no RMS level")
	}
	if math.IsInf(loudness, -1) || loudness < LoudnessFloorDBFS {
		loudness = LoudnessFloorDBFS
	}
	return loudness, nil
}

// parseRMSLevel extracts the value from an astats summary line such as
// "[Parsed_astats_0 @ 0x...] RMS level dB: -23.41".
func parseRMSLevel(line string) (float64, bool) {
	idx := strings.Index(line, "RMS level dB:")
	if idx < 0 {
		return 0, false
	}
	value := strings.TrimSpace(line[idx+len("RMS level dB:"):])
	if value == "" {
		return 0, false
	}
	if strings.EqualFold(value, "-inf") {
		return math.Inf(-1), true
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// NewExecutor returns the default executor that shells out to the binary
// and streams its output line by line.
func NewExecutor() Executor {
	return commandExecutor{}
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	forward := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onOutput != nil {
				onOutput(scanner.Text())
			}
		}
	}

	wg.Add(2)
	go forward(stdout)
	go forward(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
