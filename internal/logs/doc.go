// Package logs reads the collector's log file for the `garagewatch logs`
// command.
//
// It returns the last N lines with bounded memory, narrows output to a single
// collection run by its correlation id (console and JSON formats alike), and
// follows the file while a run is in progress, restarting from the top when
// the file is truncated.
package logs
