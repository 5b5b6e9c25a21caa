// Package logging assembles the structured slog loggers used across
// garagewatch.
//
// It owns the console and JSON handlers, parses levels, fans output to stdout
// and the log file, and exposes context helpers so collectors can tag every
// line with the run identifier and worker number. A no-op logger is provided
// for tests and for wiring code that must not fail.
package logging
