// Package jobs records request lifecycles in SQLite for observability. The
// store never decides whether an artifact exists; the storage directories
// are the only source of truth for that.
package jobs
