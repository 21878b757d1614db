// Package extraction orchestrates the chorus pipeline: request validation,
// preflight, normalization, bounded-concurrency detection, and guaranteed
// cleanup of transient artifacts.
package extraction
