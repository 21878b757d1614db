// Package services defines shared utilities consumed by the extraction
// pipeline and external integrations.
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper that keep failure
//     classification (external tool vs validation vs timeout) uniform.
//   - Thin abstractions that make command execution from external tools
//     testable.
package services
