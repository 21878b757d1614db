// Package faults defines the classified error taxonomy shared by preflight,
// extraction, and the HTTP surface. Every rejection or failure is tagged with
// a stable dotted kind so callers can branch on classification rather than on
// message text.
package faults
