// Package ingest admits uploaded audio into the intake scope: it checks the
// extension allowlist, enforces the size cap while streaming, and assigns
// each accepted file its owning identifier.
package ingest
