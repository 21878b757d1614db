package media

// Metrics captures the structural and acoustic measurements taken from an
// audio asset. It is populated whenever measurable, including on assets that
// later fail validation, so callers can always present diagnostics.
type Metrics struct {
	DurationSec  float64 `json:"duration_sec"`
	SampleRate   int     `json:"sample_rate"`
	Channels     int     `json:"channels"`
	LoudnessDBFS float64 `json:"loudness_dbfs"`
	Format       string  `json:"format"`
	Codec        string  `json:"codec"`
}

// LoudnessFloorDBFS is the clamp applied to computed loudness so that exact
// digital silence yields a finite value instead of -Inf.
const LoudnessFloorDBFS = -240.0
