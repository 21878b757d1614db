package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	BaseDir  string `toml:"base_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Ingest contains upload acceptance settings.
type Ingest struct {
	MaxUploadMiB      int      `toml:"max_upload_mib"`
	AllowedExtensions []string `toml:"allowed_extensions"`
}

// Validation contains preflight validation thresholds.
type Validation struct {
	MinDurationSec       float64 `toml:"min_duration_sec"`
	MaxDurationSec       float64 `toml:"max_duration_sec"`
	LongMode             bool    `toml:"long_mode"`
	MonoRequired         bool    `toml:"mono_required"`
	AllowDownmix         bool    `toml:"allow_downmix"`
	AllowResample        bool    `toml:"allow_resample"`
	MinSampleRate        int     `toml:"min_sample_rate"`
	MaxSampleRate        int     `toml:"max_sample_rate"`
	SilenceThresholdDBFS float64 `toml:"silence_threshold_dbfs"`
}

// Extraction contains detector invocation settings.
type Extraction struct {
	DefaultDurationSec int    `toml:"default_duration_sec"`
	MinDurationSec     int    `toml:"min_duration_sec"`
	MaxDurationSec     int    `toml:"max_duration_sec"`
	DefaultQuality     string `toml:"default_quality"`
	Workers            int    `toml:"workers"`
	QueueDepth         int    `toml:"queue_depth"`
	DetectTimeout      int    `toml:"detect_timeout"`
}

// Tools contains external binary names or paths.
type Tools struct {
	FFmpeg   string `toml:"ffmpeg"`
	FFprobe  string `toml:"ffprobe"`
	Detector string `toml:"detector"`
}

// Retention contains artifact and job record expiry settings.
type Retention struct {
	ArtifactHours     int `toml:"artifact_hours"`
	SweepIntervalMins int `toml:"sweep_interval_mins"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for chorusd.
//
// Configuration sections by subsystem:
//   - Paths: storage root, log directory, API bind address and token
//   - Ingest: upload size cap and extension allowlist
//   - Validation: preflight thresholds (duration, loudness, channels, rates)
//   - Extraction: detector duration bounds, worker pool, timeouts
//   - Tools: external binary locations (ffmpeg, ffprobe, detector)
//   - Retention: artifact expiry and sweep cadence
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Ingest     Ingest     `toml:"ingest"`
	Validation Validation `toml:"validation"`
	Extraction Extraction `toml:"extraction"`
	Tools      Tools      `toml:"tools"`
	Retention  Retention  `toml:"retention"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/chorusd/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("chorusd.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// IntakeDir returns the directory holding uploaded assets.
func (c *Config) IntakeDir() string {
	return filepath.Join(c.Paths.BaseDir, "intake")
}

// OutputDir returns the directory holding extracted chorus files.
func (c *Config) OutputDir() string {
	return filepath.Join(c.Paths.BaseDir, "output")
}

// TransientDir returns the directory holding normalization scratch files.
func (c *Config) TransientDir() string {
	return filepath.Join(c.Paths.BaseDir, "transient")
}

// EnsureDirectories creates the directories required for operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.IntakeDir(), c.OutputDir(), c.TransientDir(), c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MaxUploadBytes returns the configured upload size cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Ingest.MaxUploadMiB) * 1024 * 1024
}

// AllowedExtension reports whether the lowercase file extension is accepted.
func (c *Config) AllowedExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimSpace(ext))
	for _, allowed := range c.Ingest.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
