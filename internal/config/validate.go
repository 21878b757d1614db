package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateValidation(); err != nil {
		return err
	}
	if err := c.validateExtraction(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateValidation() error {
	v := c.Validation
	if v.MinDurationSec < 0 {
		return errors.New("validation.min_duration_sec must be >= 0")
	}
	if v.MaxDurationSec <= 0 {
		return errors.New("validation.max_duration_sec must be positive")
	}
	if v.MinDurationSec > v.MaxDurationSec {
		return errors.New("validation.min_duration_sec must not exceed validation.max_duration_sec")
	}
	if v.MinSampleRate <= 0 {
		return errors.New("validation.min_sample_rate must be positive")
	}
	if v.MaxSampleRate < v.MinSampleRate {
		return errors.New("validation.max_sample_rate must be >= validation.min_sample_rate")
	}
	if v.SilenceThresholdDBFS > 0 {
		return errors.New("validation.silence_threshold_dbfs must be <= 0")
	}
	return nil
}

func (c *Config) validateExtraction() error {
	e := c.Extraction
	if e.MinDurationSec > e.MaxDurationSec {
		return errors.New("extraction.min_duration_sec must not exceed extraction.max_duration_sec")
	}
	if e.DefaultDurationSec < e.MinDurationSec || e.DefaultDurationSec > e.MaxDurationSec {
		return fmt.Errorf("extraction.default_duration_sec must be within [%d,%d]", e.MinDurationSec, e.MaxDurationSec)
	}
	switch e.DefaultQuality {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("extraction.default_quality must be low, medium, or high (got %q)", e.DefaultQuality)
	}
	return nil
}
