package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that names the service and operation while
// tagging it with marker. A nil marker defaults to ErrTransient.
func Wrap(marker error, service, operation, message string, err error) error {
	detail := buildDetail(service, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// MarkerForStatus maps an HTTP status code to an error marker.
func MarkerForStatus(code int) error {
	switch {
	case code == 401 || code == 403:
		return ErrUnauthorized
	case code == 404:
		return ErrNotFound
	case code >= 400 && code < 500:
		return ErrConfiguration
	default:
		return ErrTransient
	}
}

// Hint returns operator guidance for a tagged error.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "check the API token or key"
	case errors.Is(err, ErrNotFound):
		return "check the configured channel, project or URL"
	case errors.Is(err, ErrConfiguration):
		return "check the configuration file"
	default:
		return "retry later; the service may be temporarily unavailable"
	}
}

func buildDetail(service, operation, message string) string {
	parts := make([]string, 0, 3)
	if service = strings.TrimSpace(service); service != "" {
		parts = append(parts, service)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
