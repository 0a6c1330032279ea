package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// The booking engine reports failures through this closed set of error
// types. Callers branch with errors.As / errors.Is, never on message text.

// ValidationError reports malformed guest or host input. FieldErrors maps an
// input field name or question ID to a single human-readable message.
type ValidationError struct {
	FieldErrors map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(e.FieldErrors))
	for f := range e.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// Invalid builds a single-field ValidationError.
func Invalid(field, msg string) *ValidationError {
	return &ValidationError{FieldErrors: map[string]string{field: msg}}
}

// NotFoundError reports an unknown entity reference.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// SlotUnavailableError reports a direct overlap with existing busy time.
type SlotUnavailableError struct {
	Start time.Time
	End   time.Time
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot %s to %s is no longer available",
		e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339))
}

// BufferConflictError reports an overlap with the buffer zone around an
// existing booking. Kept distinct from SlotUnavailableError so callers can
// word the two cases differently.
type BufferConflictError struct {
	Start time.Time
	End   time.Time
}

func (e *BufferConflictError) Error() string {
	return fmt.Sprintf("slot %s to %s conflicts with buffer time around another booking",
		e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339))
}

// AlreadyCancelledError reports a cancel on a booking that is already
// cancelled.
type AlreadyCancelledError struct {
	BookingID string
}

func (e *AlreadyCancelledError) Error() string {
	return fmt.Sprintf("booking %s is already cancelled", e.BookingID)
}

// ExternalServiceError wraps a collaborator failure (calendar, meeting
// provisioner, reminder scheduler). These are logged and never veto a
// booking decision that has already passed the authoritative conflict check.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
