// Package fileutil provides file copy helpers, including a verified copy
// used when publishing finished clips across scope directories.
package fileutil
