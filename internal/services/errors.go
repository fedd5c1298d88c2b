package services

import (
	"errors"
	"fmt"
	"strings"
)

// Markers classify pipeline failures. Wrap attaches one to every error that
// leaves a component so callers can branch with errors.Is.
var (
	ErrMissingSource    = errors.New("missing source")
	ErrNoFragments      = errors.New("no fragments")
	ErrUnstable         = errors.New("fragments still being written")
	ErrInsufficientDisk = errors.New("insufficient disk")
	ErrAssemblyTool     = errors.New("assembly tool error")
	ErrVerification     = errors.New("verification error")
	ErrLedger           = errors.New("ledger communication error")
	ErrTimeout          = errors.New("timeout")
	ErrBusy             = errors.New("busy")
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrTransient        = errors.New("transient failure")
)

var markers = []error{
	ErrMissingSource,
	ErrNoFragments,
	ErrUnstable,
	ErrInsufficientDisk,
	ErrAssemblyTool,
	ErrVerification,
	ErrLedger,
	ErrTimeout,
	ErrBusy,
	ErrValidation,
	ErrConfiguration,
	ErrTransient,
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Marker returns the first classification marker carried by err, or nil.
func Marker(err error) error {
	if err == nil {
		return nil
	}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			return marker
		}
	}
	return nil
}

// Kind returns a short snake_case label for the error's marker, suitable for
// metrics labels and the error_kind log field.
func Kind(err error) string {
	switch Marker(err) {
	case ErrMissingSource:
		return "missing_source"
	case ErrNoFragments:
		return "no_fragments"
	case ErrUnstable:
		return "fragments_unstable"
	case ErrInsufficientDisk:
		return "insufficient_disk"
	case ErrAssemblyTool:
		return "assembly_tool"
	case ErrVerification:
		return "verification"
	case ErrLedger:
		return "ledger"
	case ErrTimeout:
		return "timeout"
	case ErrBusy:
		return "busy"
	case ErrValidation:
		return "validation"
	case ErrConfiguration:
		return "configuration"
	case ErrTransient:
		return "transient"
	case nil:
		if err == nil {
			return ""
		}
		return "unknown"
	default:
		return "unknown"
	}
}

// Retryable reports whether a later invocation of the same task could succeed.
// Configuration and validation problems need an operator; everything else is
// re-checked on the next attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return false
	default:
		return true
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
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
