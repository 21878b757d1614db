// Command chorusd runs the chorus extraction service and its companion
// maintenance commands.
package main
