package testsupport

import (
	"math"
	"os"
	"testing"

	"chorusd/internal/media"
)

// WriteTone writes a sine-wave WAV fixture and returns nothing; the test
// fails on any I/O error. Amplitude is linear full-scale (0..1).
func WriteTone(t *testing.T, path string, seconds float64, sampleRate, channels int, amplitude float64) {
	t.Helper()

	samples := make([]float64, int(seconds*float64(sampleRate)))
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
	}
	data := make([][]float64, channels)
	for ch := range data {
		data[ch] = samples
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer file.Close()
	if err := media.WriteWAV(file, data, sampleRate); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}
