// Package storage manages every file the service writes, grouped by an
// owning identifier across three scope directories: intake for uploaded
// sources, output for finished clips, and transient for working files.
// Existence questions are always answered by listing the directories; the
// in-memory registry only makes cleanup thorough, never authoritative.
package storage
