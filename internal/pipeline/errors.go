package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for the normalization failure taxonomy. Wrapped errors
// carry one of these so callers can classify without string matching.
var (
	// ErrConfiguration marks errors caused by missing or invalid mapping
	// configuration. Fatal to the record; retrying without a config change
	// cannot succeed.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransform marks malformed raw payloads. One bad field fails the
	// whole record rather than writing a partial entity.
	ErrTransform = errors.New("transform error")
	// ErrResolution marks canonical-ID linking failures that survived the
	// per-record retry budget.
	ErrResolution = errors.New("resolution error")
	// ErrStore marks failures writing to the catalog or its audit tables.
	ErrStore = errors.New("store error")
)

// Wrap tags an error with a taxonomy marker and operation context. The marker
// should be one of the exported sentinels above.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		marker = ErrStore
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "normalization failure"
	}
	return strings.Join(parts, ": ")
}
