package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Validation.MinDurationSec != 30 {
		t.Errorf("unexpected min duration: %v", cfg.Validation.MinDurationSec)
	}
	if cfg.Validation.SilenceThresholdDBFS != -45.0 {
		t.Errorf("unexpected silence threshold: %v", cfg.Validation.SilenceThresholdDBFS)
	}
	if cfg.Extraction.DefaultDurationSec != 30 {
		t.Errorf("unexpected default target duration: %v", cfg.Extraction.DefaultDurationSec)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, path, exists, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Error("expected exists=false for missing file")
	}
	if path == "" {
		t.Error("expected resolved path even when missing")
	}
	if cfg.Tools.Detector != "chorus-detect" {
		t.Errorf("unexpected detector binary: %q", cfg.Tools.Detector)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
base_dir = "` + dir + `/data"

[validation]
min_duration_sec = 5.0
long_mode = true

[extraction]
workers = 4
queue_depth = 8

[ingest]
allowed_extensions = ["mp3", ".WAV", "mp3"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.Validation.MinDurationSec != 5.0 {
		t.Errorf("override not applied: %v", cfg.Validation.MinDurationSec)
	}
	if !cfg.Validation.LongMode {
		t.Error("long_mode override not applied")
	}
	if cfg.Extraction.Workers != 4 {
		t.Errorf("workers override not applied: %d", cfg.Extraction.Workers)
	}
	if got := cfg.Ingest.AllowedExtensions; len(got) != 2 || got[0] != ".mp3" || got[1] != ".wav" {
		t.Errorf("extensions not normalized: %v", got)
	}
	if !strings.HasSuffix(cfg.IntakeDir(), filepath.Join("data", "intake")) {
		t.Errorf("unexpected intake dir: %s", cfg.IntakeDir())
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"min above max duration", func(c *Config) { c.Validation.MinDurationSec = 1000 }},
		{"positive silence threshold", func(c *Config) { c.Validation.SilenceThresholdDBFS = 3 }},
		{"zero min sample rate", func(c *Config) { c.Validation.MinSampleRate = 0 }},
		{"bad quality", func(c *Config) { c.Extraction.DefaultQuality = "ultra" }},
		{"default outside bounds", func(c *Config) { c.Extraction.DefaultDurationSec = 500 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			if err := cfg.normalize(); err != nil {
				t.Fatalf("normalize: %v", err)
			}
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := Default()
	base := t.TempDir()
	cfg.Paths.BaseDir = base
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	for _, dir := range []string{cfg.IntakeDir(), cfg.OutputDir(), cfg.TransientDir(), cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("directory %s not created", dir)
		}
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[validation]") {
		t.Error("sample missing validation section")
	}
}
