package config

const (
	defaultBaseDir = "~/.local/share/chorusd"
	defaultLogDir  = "~/.local/share/chorusd/logs"
	defaultAPIBind = "127.0.0.1:8316"

	defaultMaxUploadMiB = 50

	defaultMinDurationSec       = 30.0
	defaultMaxDurationSec       = 900.0
	defaultMinSampleRate        = 16000
	defaultMaxSampleRate        = 192000
	defaultSilenceThresholdDBFS = -45.0

	defaultTargetDurationSec = 30
	defaultMinTargetDuration = 10
	defaultMaxTargetDuration = 120
	defaultQuality           = "high"
	defaultWorkers           = 2
	defaultDetectTimeout     = 300

	defaultFFmpegBinary   = "ffmpeg"
	defaultFFprobeBinary  = "ffprobe"
	defaultDetectorBinary = "chorus-detect"

	defaultArtifactHours     = 24
	defaultSweepIntervalMins = 30

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

func defaultAllowedExtensions() []string {
	return []string{".mp3", ".wav", ".m4a", ".flac", ".aac", ".ogg"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			BaseDir: defaultBaseDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Ingest: Ingest{
			MaxUploadMiB:      defaultMaxUploadMiB,
			AllowedExtensions: defaultAllowedExtensions(),
		},
		Validation: Validation{
			MinDurationSec:       defaultMinDurationSec,
			MaxDurationSec:       defaultMaxDurationSec,
			LongMode:             false,
			MonoRequired:         false,
			AllowDownmix:         true,
			AllowResample:        true,
			MinSampleRate:        defaultMinSampleRate,
			MaxSampleRate:        defaultMaxSampleRate,
			SilenceThresholdDBFS: defaultSilenceThresholdDBFS,
		},
		Extraction: Extraction{
			DefaultDurationSec: defaultTargetDurationSec,
			MinDurationSec:     defaultMinTargetDuration,
			MaxDurationSec:     defaultMaxTargetDuration,
			DefaultQuality:     defaultQuality,
			Workers:            defaultWorkers,
			DetectTimeout:      defaultDetectTimeout,
		},
		Tools: Tools{
			FFmpeg:   defaultFFmpegBinary,
			FFprobe:  defaultFFprobeBinary,
			Detector: defaultDetectorBinary,
		},
		Retention: Retention{
			ArtifactHours:     defaultArtifactHours,
			SweepIntervalMins: defaultSweepIntervalMins,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
