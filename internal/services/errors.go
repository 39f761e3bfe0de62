package services

import (
	"errors"
	"fmt"
	"strings"
)

// Markers tag errors for Classify. Only ErrTransient, ErrTimeout and
// ErrNoConnection are retried; the rest fail the job.
var (
	// ErrExternalTool marks a non-zero ffmpeg exit.
	ErrExternalTool = errors.New("external tool error")
	// ErrValidation marks a malformed job request.
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	// ErrTransient marks a collaborator failure worth retrying, such as an
	// object store 5xx.
	ErrTransient = errors.New("transient failure")
	// ErrNoConnection is returned by upload steps while the liveness oracle
	// reports the car offline.
	ErrNoConnection = errors.New("no connection")
)

// Wrap returns "marker: component: operation: message[: err]" with both
// marker and err reachable through errors.Is. Blank parts are omitted and a
// nil marker is treated as ErrTransient.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	var parts []string
	for _, part := range []string{component, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	detail := "service failure"
	if len(parts) > 0 {
		detail = strings.Join(parts, ": ")
	}
	if err == nil {
		return fmt.Errorf("%w: %s", marker, detail)
	}
	return fmt.Errorf("%w: %s: %w", marker, detail, err)
}
