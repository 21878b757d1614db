// Package normalize converts audio assets to the canonical WAV container
// ahead of chorus detection. It preserves the native sample rate and channel
// layout; WAV sources pass through untouched.
package normalize
