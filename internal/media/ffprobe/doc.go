// Package ffprobe wraps ffprobe execution and JSON parsing for audio
// container inspection.
package ffprobe
