package extraction

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chorusd/internal/faults"
	"chorusd/internal/media"
	"chorusd/internal/normalize"
	"chorusd/internal/preflight"
	"chorusd/internal/services/chorus"
	"chorusd/internal/storage"
)

type stubProber struct {
	metrics media.Metrics
	err     error
	calls   int
}

func (s *stubProber) Probe(context.Context, string) (media.Metrics, error) {
	s.calls++
	return s.metrics, s.err
}

type stubDetector struct {
	result  chorus.Result
	err     error
	calls   int
	input   string
	target  float64
	quality string
}

func (s *stubDetector) Detect(_ context.Context, inputPath string, clipSeconds float64, quality string, outputPath string) (chorus.Result, error) {
	s.calls++
	s.input = inputPath
	s.target = clipSeconds
	s.quality = quality
	if s.err != nil {
		return chorus.Result{}, s.err
	}
	if s.result.Found {
		if err := os.WriteFile(outputPath, []byte("RIFF"), 0o644); err != nil {
			return chorus.Result{}, err
		}
	}
	return s.result, nil
}

type decodeExecutor struct{ err error }

func (d decodeExecutor) Run(_ context.Context, _ string, args []string, _ func(string)) error {
	if d.err != nil {
		return d.err
	}
	return os.WriteFile(args[len(args)-1], []byte("RIFF"), 0o644)
}

type fixture struct {
	orch     *Orchestrator
	store    *storage.Manager
	prober   *stubProber
	detector *stubDetector
}

func defaultSettings() Settings {
	return Settings{
		Validation: preflight.Config{
			MinDurationSec:       30,
			MaxDurationSec:       900,
			AllowDownmix:         true,
			AllowResample:        true,
			MinSampleRate:        16000,
			MaxSampleRate:        192000,
			SilenceThresholdDBFS: -45.0,
		},
		MinTargetSec:     10,
		MaxTargetSec:     120,
		DefaultTargetSec: 30,
		DetectTimeout:    5 * time.Second,
	}
}

func goodMetrics() media.Metrics {
	return media.Metrics{
		DurationSec:  45,
		SampleRate:   44100,
		Channels:     2,
		LoudnessDBFS: -20,
		Format:       "mp3",
		Codec:        "mp3",
	}
}

func newFixture(t *testing.T, prober *stubProber, detector *stubDetector, decodeErr error) fixture {
	t.Helper()
	base := t.TempDir()
	store := storage.NewManager(
		filepath.Join(base, "intake"),
		filepath.Join(base, "output"),
		filepath.Join(base, "transient"),
		nil,
	)
	norm := normalize.New(store, "ffmpeg", nil, normalize.WithExecutor(decodeExecutor{err: decodeErr}))
	orch := New(defaultSettings(), preflight.New(prober, nil), norm, detector, store, NewPool(2, 0), nil)
	return fixture{orch: orch, store: store, prober: prober, detector: detector}
}

func (f fixture) seedIntake(t *testing.T, identifier, ext string) {
	t.Helper()
	dir := f.store.Dir(storage.ScopeIntake)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, identifier+ext), []byte("audio"), 0o644); err != nil {
		t.Fatalf("seed intake: %v", err)
	}
}

func TestExtractEndToEnd(t *testing.T) {
	detector := &stubDetector{result: chorus.Result{StartSec: 12.3, Found: true}}
	f := newFixture(t, &stubProber{metrics: goodMetrics()}, detector, nil)
	f.seedIntake(t, "job1", ".mp3")

	result, err := f.orch.Extract(context.Background(), "job1", Request{TargetDurationSec: 30})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.ChorusStartSec != 12.3 {
		t.Errorf("unexpected chorus offset: %v", result.ChorusStartSec)
	}
	if result.Metrics.DurationSec != 45 || result.Metrics.Channels != 2 || result.Metrics.SampleRate != 44100 {
		t.Errorf("unexpected metrics: %+v", result.Metrics)
	}
	if _, err := os.Stat(result.OutputPath); err != nil {
		t.Errorf("expected output clip on disk: %v", err)
	}
	if detector.target != 30 {
		t.Errorf("detector received target %v, want 30", detector.target)
	}
}

func TestExtractForwardsQuality(t *testing.T) {
	detector := &stubDetector{result: chorus.Result{StartSec: 1, Found: true}}
	f := newFixture(t, &stubProber{metrics: goodMetrics()}, detector, nil)
	f.seedIntake(t, "job1", ".mp3")

	if _, err := f.orch.Extract(context.Background(), "job1", Request{TargetDurationSec: 30, Quality: "high"}); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if detector.quality != "high" {
		t.Errorf("detector received quality %q, want %q", detector.quality, "high")
	}
}

func TestExtractInvalidDurationDoesNoIO(t *testing.T) {
	detector := &stubDetector{result: chorus.Result{Found: true}}
	prober := &stubProber{metrics: goodMetrics()}
	f := newFixture(t, prober, detector, nil)
	f.seedIntake(t, "job1", ".mp3")

	_, err := f.orch.Extract(context.Background(), "job1", Request{TargetDurationSec: 5})
	if !faults.Is(err, faults.KindRequestInvalidDuration) {
		t.Fatalf("expected invalid duration fault, got %v", err)
	}
	if prober.calls != 0 || detector.calls != 0 {
		t.Error("no I/O may happen for an invalid duration")
	}

	_, err = f.orch.Extract(context.Background(), "job1", Request{TargetDurationSec: 121})
	if !faults.Is(err, faults.KindRequestInvalidDuration) {
		t.Fatalf("expected invalid duration fault, got %v", err)
	}
}

func TestExtractDefaultsTargetDuration(t *testing.T) {
	detector := &stubDetector{result: chorus.Result{StartSec: 1, Found: true}}
	f := newFixture(t, &stubProber{metrics: goodMetrics()}, detector, nil)
	f.seedIntake(t, "job1", ".mp3")

	if _, err := f.orch.Extract(context.Background(), "job1", Request{}); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if detector.target != 30 {
		t.Errorf("expected default target 30, got %v", detector.target)
	}
}

func TestExtractMissingIntakeFile(t *testing.T) {
	f := newFixture(t, &stubProber{metrics: goodMetrics()}, &stubDetector{}, nil)

	_, err := f.orch.Extract(context.Background(), "absent", Request{TargetDurationSec: 30})
	if !faults.Is(err, faults.KindFileNotFound) {
		t.Fatalf("expected not-found fault, got %v", err)
	}
}

func TestExtractPreflightRejectionSkipsDetection(t *testing.T) {
	metrics := goodMetrics()
	metrics.DurationSec = 5
	detector := &stubDetector{result: chorus.Result{Found: true}}
	f := newFixture(t, &stubProber{metrics: metrics}, detector, nil)
	f.seedIntake(t, "job1", ".mp3")

	_, err := f.orch.Extract(context.Background(), "job1", Request{TargetDurationSec: 30})
	if !faults.Is(err, faults.KindAudioTooShort) {
		t.Fatalf("expected too-short fault, got %v", err)
	}
	if detector.calls != 0 {
		t.Error("detection must never run after a preflight rejection")
	}
	fault, _ := faults.As(err)
	if fault.Metrics == nil || fault.Metrics.DurationSec != 5 {
		t.Errorf("rejection should carry metrics, got %+v", fault.Metrics)
	}
}

func TestExtractRemovesTransientOnSuccess(t *testing.T) {
	detector := &stubDetector{result: chorus.Result{StartSec: 3, Found: true}}
	f := newFixture(t, &stubProber{metrics: goodMetrics()}, detector, nil)
	f.seedIntake(t, "job1", ".mp3")

	if _, err := f.orch.Extract(context.Background(), "job1", Request{TargetDurationSec: 30}); err != nil {
		t.Fatalf("extract: %v", err)
	}
	transient := filepath.Join(f.store.Dir(storage.ScopeTransient), "job1_normalized.wav")
	if _, err := os.Stat(transient); !os.IsNotExist(err) {
		t.Errorf("transient artifact should be removed, stat err=%v", err)
	}
	clip := filepath.Join(f.store.Dir(storage.ScopeTransient), "job1_clip.wav")
	if _, err := os.Stat(clip); !os.IsNotExist(err) {
		t.Errorf("transient clip should be removed, stat err=%v", err)
	}
	// The detector consumed the normalized copy, not the original.
	if f.detector.input != transient {
		t.Errorf("detector input %q, want %q", f.detector.input, transient)
	}
}

func TestExtractRemovesTransientOnDetectorFailure(t *testing.T) {
	detector := &stubDetector{err: errors.New("detector crashed")}
	f := newFixture(t, &stubProber{metrics: goodMetrics()}, detector, nil)
	f.seedIntake(t, "job1", ".mp3")

	_, err := f.orch.Extract(context.Background(), "job1", Request{TargetDurationSec: 30})
	if !faults.Is(err, faults.KindExtractionFailed) {
		t.Fatalf("expected extraction failure, got %v", err)
	}
	transient := filepath.Join(f.store.Dir(storage.ScopeTransient), "job1_normalized.wav")
	if _, statErr := os.Stat(transient); !os.IsNotExist(statErr) {
		t.Errorf("transient artifact should be removed, stat err=%v", statErr)
	}
}

func TestExtractRejectsOffsetOutsideAssetDuration(t *testing.T) {
	// The fixture's probe reports a 45 second asset.
	for _, start := range []float64{-7.5, 45, 120} {
		detector := &stubDetector{result: chorus.Result{StartSec: start, Found: true}}
		f := newFixture(t, &stubProber{metrics: goodMetrics()}, detector, nil)
		f.seedIntake(t, "job1", ".mp3")

		_, err := f.orch.Extract(context.Background(), "job1", Request{TargetDurationSec: 30})
		if !faults.Is(err, faults.KindExtractionFailed) {
			t.Fatalf("offset %v: expected extraction failure, got %v", start, err)
		}
		if f.store.Exists(storage.ScopeOutput, "job1") {
			t.Errorf("offset %v: no output artifact may remain", start)
		}
	}
}

type blockingDetector struct {
	release  chan struct{}
	done     chan struct{}
	ctxErr   error
	clipPath string
}

func (d *blockingDetector) Detect(ctx context.Context, _ string, _ float64, _ string, outputPath string) (chorus.Result, error) {
	<-d.release
	d.ctxErr = ctx.Err()
	d.clipPath = outputPath
	err := os.WriteFile(outputPath, []byte("RIFF"), 0o644)
	close(d.done)
	return chorus.Result{StartSec: 1, Found: true}, err
}

func TestExtractTimeoutAbandonsWaitWithoutPreemption(t *testing.T) {
	detector := &blockingDetector{
		release: make(chan struct{}),
		done:    make(chan struct{}),
	}
	prober := &stubProber{metrics: goodMetrics()}
	base := t.TempDir()
	store := storage.NewManager(
		filepath.Join(base, "intake"),
		filepath.Join(base, "output"),
		filepath.Join(base, "transient"),
		nil,
	)
	settings := defaultSettings()
	settings.DetectTimeout = 20 * time.Millisecond
	norm := normalize.New(store, "ffmpeg", nil, normalize.WithExecutor(decodeExecutor{}))
	orch := New(settings, preflight.New(prober, nil), norm, detector, store, NewPool(1, 0), nil)
	f := fixture{orch: orch, store: store, prober: prober, detector: nil}
	f.seedIntake(t, "job1", ".mp3")

	_, err := orch.Extract(context.Background(), "job1", Request{TargetDurationSec: 30})
	if !faults.Is(err, faults.KindExtractionFailed) {
		t.Fatalf("expected extraction failure on timeout, got %v", err)
	}

	// The dispatched run was not killed; it finishes once released.
	close(detector.release)
	select {
	case <-detector.done:
	case <-time.After(2 * time.Second):
		t.Fatal("detector run should have completed after release")
	}
	if detector.ctxErr != nil {
		t.Errorf("detector context was canceled: %v", detector.ctxErr)
	}

	// The straggler's clip is swept once the run lands.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, statErr := os.Stat(detector.clipPath); os.IsNotExist(statErr) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("abandoned clip was not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestExtractNoChorusFound(t *testing.T) {
	detector := &stubDetector{result: chorus.Result{Found: false}}
	f := newFixture(t, &stubProber{metrics: goodMetrics()}, detector, nil)
	f.seedIntake(t, "job1", ".mp3")

	_, err := f.orch.Extract(context.Background(), "job1", Request{TargetDurationSec: 30})
	if !faults.Is(err, faults.KindExtractionNoChorus) {
		t.Fatalf("expected no-chorus fault, got %v", err)
	}
	if f.store.Exists(storage.ScopeOutput, "job1") {
		t.Error("no output artifact may remain after a no-chorus verdict")
	}
}

func TestExtractNormalizationFailureFallsBack(t *testing.T) {
	detector := &stubDetector{result: chorus.Result{StartSec: 7, Found: true}}
	f := newFixture(t, &stubProber{metrics: goodMetrics()}, detector, errors.New("decode failed"))
	f.seedIntake(t, "job1", ".mp3")

	result, err := f.orch.Extract(context.Background(), "job1", Request{TargetDurationSec: 30})
	if err != nil {
		t.Fatalf("extract should fall back to the original asset: %v", err)
	}
	wantInput := filepath.Join(f.store.Dir(storage.ScopeIntake), "job1.mp3")
	if detector.input != wantInput {
		t.Errorf("detector input %q, want original %q", detector.input, wantInput)
	}
	if result.ChorusStartSec != 7 {
		t.Errorf("unexpected chorus offset: %v", result.ChorusStartSec)
	}
}

func TestExtractWAVSkipsNormalization(t *testing.T) {
	detector := &stubDetector{result: chorus.Result{StartSec: 2, Found: true}}
	f := newFixture(t, &stubProber{metrics: goodMetrics()}, detector, nil)
	f.seedIntake(t, "job1", ".wav")

	if _, err := f.orch.Extract(context.Background(), "job1", Request{TargetDurationSec: 30}); err != nil {
		t.Fatalf("extract: %v", err)
	}
	wantInput := filepath.Join(f.store.Dir(storage.ScopeIntake), "job1.wav")
	if detector.input != wantInput {
		t.Errorf("detector input %q, want %q", detector.input, wantInput)
	}
}

func TestExtractRequestFlagsOverrideValidation(t *testing.T) {
	metrics := goodMetrics()
	metrics.DurationSec = 3600
	detector := &stubDetector{result: chorus.Result{StartSec: 9, Found: true}}
	f := newFixture(t, &stubProber{metrics: metrics}, detector, nil)
	f.seedIntake(t, "job1", ".mp3")

	if _, err := f.orch.Extract(context.Background(), "job1", Request{TargetDurationSec: 30, LongMode: true}); err != nil {
		t.Fatalf("long mode request should pass validation: %v", err)
	}
}
