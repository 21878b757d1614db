// Package testsupport provides shared test fixtures: temporary
// configurations and generated audio files.
package testsupport
