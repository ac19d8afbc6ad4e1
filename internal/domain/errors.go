package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrAuthorization     = errors.New("not permitted")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrIneligibleRequest = errors.New("request is not accepting donors")
	ErrTokenMismatch     = errors.New("verification token does not match donation")
)

// Reasons a request turns a donor away. Each wraps ErrIneligibleRequest.
var (
	ErrRequestFull       = fmt.Errorf("%w: no units left", ErrIneligibleRequest)
	ErrRequestClosed     = fmt.Errorf("%w: request is closed", ErrIneligibleRequest)
	ErrAlreadyResponding = fmt.Errorf("%w: donor already has an active response", ErrIneligibleRequest)
)

// DataIntegrityWarning reports a stored row that could not be interpreted.
// It is non-fatal: the affected item is skipped, the warning is surfaced.
type DataIntegrityWarning struct {
	RequestID string
	Field     string
	Value     string
	Err       error
}

func (w *DataIntegrityWarning) Error() string {
	return fmt.Sprintf("data integrity: request %s has invalid %s %q: %v", w.RequestID, w.Field, w.Value, w.Err)
}

func (w *DataIntegrityWarning) Unwrap() error { return w.Err }

// Validationf wraps ErrValidation with a specific reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
