package media

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
)

type fakeExecutor struct {
	lines []string
	err   error

	binary string
	args   []string
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string, onOutput func(string)) error {
	f.binary = binary
	f.args = args
	for _, line := range f.lines {
		onOutput(line)
	}
	return f.err
}

func TestParseRMSLevel(t *testing.T) {
	cases := []struct {
		line  string
		want  float64
		found bool
	}{
		{"[Parsed_astats_0 @ 0x55d] RMS level dB: -23.41", -23.41, true},
		{"RMS level dB: 0.0", 0, true},
		{"[Parsed_astats_0 @ 0x55d] RMS level dB: -inf", math.Inf(-1), true},
		{"Peak level dB: -3.0", 0, false},
		{"size=N/A time=00:03:03.24", 0, false},
	}
	for _, tc := range cases {
		got, found := parseRMSLevel(tc.line)
		if found != tc.found {
			t.Errorf("parseRMSLevel(%q) found=%v, want %v", tc.line, found, tc.found)
			continue
		}
		if found && got != tc.want {
			t.Errorf("parseRMSLevel(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestProbeMissingFile(t *testing.T) {
	prober := NewProber("ffmpeg", "ffprobe")
	_, err := prober.Probe(context.Background(), filepath.Join(t.TempDir(), "absent.mp3"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestProbeWAVSkipsExternalTools(t *testing.T) {
	executor := &fakeExecutor{}
	prober := NewProber("ffmpeg", "ffprobe", WithExecutor(executor))

	path := filepath.Join(t.TempDir(), "tone.wav")
	writeTestWAV(t, path, [][]float64{sineWave(220, 0.3, 1, 22050)}, 22050)

	metrics, err := prober.Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if executor.binary != "" {
		t.Errorf("wav probe should not exec external tools, ran %q", executor.binary)
	}
	if metrics.SampleRate != 22050 {
		t.Errorf("unexpected sample rate: %d", metrics.SampleRate)
	}
}

func TestMeasureLoudnessParsesAstats(t *testing.T) {
	executor := &fakeExecutor{lines: []string{
		"Input #0, mp3, from 'song.mp3':",
		"[Parsed_astats_0 @ 0x7f] Overall",
		"[Parsed_astats_0 @ 0x7f] RMS level dB: -18.72",
	}}
	prober := NewProber("ffmpeg", "ffprobe", WithExecutor(executor))

	loudness, err := prober.measureLoudness(context.Background(), "song.mp3")
	if err != nil {
		t.Fatalf("measure loudness: %v", err)
	}
	if loudness != -18.72 {
		t.Errorf("unexpected loudness: %v", loudness)
	}
	if executor.binary != "ffmpeg" {
		t.Errorf("unexpected binary: %q", executor.binary)
	}
}

func TestMeasureLoudnessClampsNegativeInfinity(t *testing.T) {
	executor := &fakeExecutor{lines: []string{"RMS level dB: -inf"}}
	prober := NewProber("ffmpeg", "ffprobe", WithExecutor(executor))

	loudness, err := prober.measureLoudness(context.Background(), "silence.mp3")
	if err != nil {
		t.Fatalf("measure loudness: %v", err)
	}
	if loudness != LoudnessFloorDBFS {
		t.Errorf("expected floor %v, got %v", LoudnessFloorDBFS, loudness)
	}
}

func TestMeasureLoudnessRequiresRMSLine(t *testing.T) {
	executor := &fakeExecutor{lines: []string{"no astats output here"}}
	prober := NewProber("ffmpeg", "ffprobe", WithExecutor(executor))

	if _, err := prober.measureLoudness(context.Background(), "song.mp3"); err == nil {
		t.Fatal("expected error when astats output is missing")
	}
}
