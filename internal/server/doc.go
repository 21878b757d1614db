// Package server exposes the HTTP API: upload-and-extract, clip download,
// explicit cleanup, job inspection, and service status. It also owns the
// retention sweeper and the single-instance lock.
package server
