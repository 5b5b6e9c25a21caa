package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"garagewatch/internal/services"
)

const (
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}

// reportError prints err with operator guidance for tagged service failures
// and returns the process exit code.
func reportError(w io.Writer, err error) int {
	if errors.Is(err, context.Canceled) {
		return exitFailure
	}
	fmt.Fprintln(w, err)
	if isServiceError(err) {
		fmt.Fprintf(w, "hint: %s\n", services.Hint(err))
	}
	if errors.Is(err, services.ErrConfiguration) {
		return exitConfig
	}
	return exitFailure
}

func isServiceError(err error) bool {
	for _, marker := range []error{services.ErrConfiguration, services.ErrUnauthorized, services.ErrNotFound, services.ErrTransient} {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}
