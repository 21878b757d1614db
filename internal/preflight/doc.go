// Package preflight gates audio assets before extraction. Checks run in a
// fixed order and short-circuit on the first failure; the order is part of
// the API contract because callers key behaviour off the reported kind.
package preflight
