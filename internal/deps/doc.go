// Package deps checks the external binaries and directories the service
// needs before it starts serving.
package deps
