package preflight

import (
	"context"
	"errors"
	"os"
	"testing"

	"chorusd/internal/faults"
	"chorusd/internal/media"
)

type stubProber struct {
	metrics media.Metrics
	err     error
}

func (s stubProber) Probe(context.Context, string) (media.Metrics, error) {
	return s.metrics, s.err
}

func defaultConfig() Config {
	return Config{
		MinDurationSec:       30,
		MaxDurationSec:       900,
		MonoRequired:         false,
		AllowDownmix:         true,
		AllowResample:        true,
		MinSampleRate:        16000,
		MaxSampleRate:        192000,
		SilenceThresholdDBFS: -45.0,
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

func TestValidateAccepts(t *testing.T) {
	v := New(stubProber{metrics: goodMetrics()}, nil)
	outcome := v.Validate(context.Background(), "id", "song.mp3", defaultConfig())
	if !outcome.OK {
		t.Fatalf("expected acceptance, got %v", outcome.Rejection)
	}
	if outcome.Metrics.DurationSec != 45 {
		t.Errorf("unexpected metrics: %+v", outcome.Metrics)
	}
}

func TestValidateMissingFile(t *testing.T) {
	v := New(stubProber{err: os.ErrNotExist}, nil)
	outcome := v.Validate(context.Background(), "id", "gone.mp3", defaultConfig())
	if outcome.OK {
		t.Fatal("expected rejection")
	}
	if outcome.Rejection.Kind != faults.KindFileNotFound {
		t.Errorf("unexpected kind: %s", outcome.Rejection.Kind)
	}
}

func TestValidateProbeFailure(t *testing.T) {
	v := New(stubProber{err: errors.New("corrupt container")}, nil)
	outcome := v.Validate(context.Background(), "id", "bad.mp3", defaultConfig())
	if outcome.OK {
		t.Fatal("expected rejection")
	}
	if outcome.Rejection.Kind != faults.KindAudioPreflight {
		t.Errorf("unexpected kind: %s", outcome.Rejection.Kind)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		metrics func(m media.Metrics) media.Metrics
		config  func(c Config) Config
		want    faults.Kind
	}{
		{
			name:    "too short",
			metrics: func(m media.Metrics) media.Metrics { m.DurationSec = 5; return m },
			config:  func(c Config) Config { return c },
			want:    faults.KindAudioTooShort,
		},
		{
			name:    "too long",
			metrics: func(m media.Metrics) media.Metrics { m.DurationSec = 1200; return m },
			config:  func(c Config) Config { return c },
			want:    faults.KindAudioTooLong,
		},
		{
			name:    "silent",
			metrics: func(m media.Metrics) media.Metrics { m.LoudnessDBFS = -80; return m },
			config:  func(c Config) Config { return c },
			want:    faults.KindAudioSilentOrLowRMS,
		},
		{
			name:    "mono required",
			metrics: func(m media.Metrics) media.Metrics { return m },
			config: func(c Config) Config {
				c.MonoRequired = true
				c.AllowDownmix = false
				return c
			},
			want: faults.KindAudioMonoRequired,
		},
		{
			name:    "sample rate too low",
			metrics: func(m media.Metrics) media.Metrics { m.SampleRate = 8000; return m },
			config: func(c Config) Config {
				c.AllowResample = false
				return c
			},
			want: faults.KindAudioSampleRate,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := New(stubProber{metrics: tc.metrics(goodMetrics())}, nil)
			outcome := v.Validate(context.Background(), "id", "song.mp3", tc.config(defaultConfig()))
			if outcome.OK {
				t.Fatal("expected rejection")
			}
			if outcome.Rejection.Kind != tc.want {
				t.Errorf("unexpected kind: %s, want %s", outcome.Rejection.Kind, tc.want)
			}
			if outcome.Rejection.Metrics == nil {
				t.Error("rejection should carry the measured metrics")
			}
		})
	}
}

func TestValidateOrderTooLongBeforeSilent(t *testing.T) {
	// An asset that is both too long and silent must report too long.
	metrics := goodMetrics()
	metrics.DurationSec = 1200
	metrics.LoudnessDBFS = -90

	v := New(stubProber{metrics: metrics}, nil)
	outcome := v.Validate(context.Background(), "id", "song.mp3", defaultConfig())
	if outcome.Rejection == nil || outcome.Rejection.Kind != faults.KindAudioTooLong {
		t.Fatalf("expected too-long to win, got %v", outcome.Rejection)
	}
}

func TestValidateLongModeBypassesMaxDuration(t *testing.T) {
	metrics := goodMetrics()
	metrics.DurationSec = 7200

	cfg := defaultConfig()
	cfg.LongMode = true

	v := New(stubProber{metrics: metrics}, nil)
	outcome := v.Validate(context.Background(), "id", "song.mp3", cfg)
	if !outcome.OK {
		t.Fatalf("long mode should bypass the maximum, got %v", outcome.Rejection)
	}
}

func TestValidateDownmixAllowsStereo(t *testing.T) {
	cfg := defaultConfig()
	cfg.MonoRequired = true
	cfg.AllowDownmix = true

	v := New(stubProber{metrics: goodMetrics()}, nil)
	outcome := v.Validate(context.Background(), "id", "song.mp3", cfg)
	if !outcome.OK {
		t.Fatalf("allow_downmix should permit stereo, got %v", outcome.Rejection)
	}
}

func TestValidateResampleAllowsOutOfRangeRate(t *testing.T) {
	metrics := goodMetrics()
	metrics.SampleRate = 8000

	v := New(stubProber{metrics: metrics}, nil)
	outcome := v.Validate(context.Background(), "id", "song.mp3", defaultConfig())
	if !outcome.OK {
		t.Fatalf("allow_resample should permit out-of-range rates, got %v", outcome.Rejection)
	}
}

func TestValidateBoundaryDurations(t *testing.T) {
	cfg := defaultConfig()

	metrics := goodMetrics()
	metrics.DurationSec = cfg.MinDurationSec
	v := New(stubProber{metrics: metrics}, nil)
	if outcome := v.Validate(context.Background(), "id", "a.mp3", cfg); !outcome.OK {
		t.Errorf("exact minimum duration should pass, got %v", outcome.Rejection)
	}

	metrics.DurationSec = cfg.MaxDurationSec
	v = New(stubProber{metrics: metrics}, nil)
	if outcome := v.Validate(context.Background(), "id", "a.mp3", cfg); !outcome.OK {
		t.Errorf("exact maximum duration should pass, got %v", outcome.Rejection)
	}
}
