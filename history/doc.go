// Package history keeps finished agent runs and workflow results so callers
// can look them up by id after the fact. The Orchestrator records into a
// Store when one is configured.
//
// Add additional backends (Redis, Postgres, ...) in sub-packages without
// changing calling code; only the wiring layer decides which implementation
// to instantiate.
package history
