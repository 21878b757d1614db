// Package media measures audio assets: container metadata, duration, channel
// layout, and RMS loudness in dBFS. WAV files are decoded natively; other
// containers are measured through ffprobe and ffmpeg.
package media
