package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIngest()
	c.normalizeExtraction()
	c.normalizeTools()
	c.normalizeRetention()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.BaseDir) == "" {
		c.Paths.BaseDir = defaultBaseDir
	}
	if c.Paths.BaseDir, err = expandPath(c.Paths.BaseDir); err != nil {
		return fmt.Errorf("paths.base_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("CHORUSD_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeIngest() {
	if c.Ingest.MaxUploadMiB <= 0 {
		c.Ingest.MaxUploadMiB = defaultMaxUploadMiB
	}
	if len(c.Ingest.AllowedExtensions) == 0 {
		c.Ingest.AllowedExtensions = defaultAllowedExtensions()
		return
	}
	exts := make([]string, 0, len(c.Ingest.AllowedExtensions))
	seen := make(map[string]struct{}, len(c.Ingest.AllowedExtensions))
	for _, ext := range c.Ingest.AllowedExtensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = defaultAllowedExtensions()
	}
	c.Ingest.AllowedExtensions = exts
}

func (c *Config) normalizeExtraction() {
	if c.Extraction.DefaultDurationSec <= 0 {
		c.Extraction.DefaultDurationSec = defaultTargetDurationSec
	}
	if c.Extraction.MinDurationSec <= 0 {
		c.Extraction.MinDurationSec = defaultMinTargetDuration
	}
	if c.Extraction.MaxDurationSec <= 0 {
		c.Extraction.MaxDurationSec = defaultMaxTargetDuration
	}
	c.Extraction.DefaultQuality = strings.ToLower(strings.TrimSpace(c.Extraction.DefaultQuality))
	if c.Extraction.DefaultQuality == "" {
		c.Extraction.DefaultQuality = defaultQuality
	}
	if c.Extraction.Workers <= 0 {
		c.Extraction.Workers = defaultWorkers
	}
	if c.Extraction.QueueDepth < 0 {
		c.Extraction.QueueDepth = 0
	}
	if c.Extraction.DetectTimeout <= 0 {
		c.Extraction.DetectTimeout = defaultDetectTimeout
	}
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpegBinary
	}
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = defaultFFprobeBinary
	}
	c.Tools.Detector = strings.TrimSpace(c.Tools.Detector)
	if c.Tools.Detector == "" {
		c.Tools.Detector = defaultDetectorBinary
	}
}

func (c *Config) normalizeRetention() {
	if c.Retention.ArtifactHours < 0 {
		c.Retention.ArtifactHours = 0
	}
	if c.Retention.SweepIntervalMins <= 0 {
		c.Retention.SweepIntervalMins = defaultSweepIntervalMins
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
