package ads

import (
	"errors"
	"fmt"
)

// PlatformError is a structured failure reported by the query backend
// (malformed query, quota, permission).
type PlatformError struct {
	HTTPStatus int
	// Status is the machine status, e.g. INVALID_ARGUMENT.
	Status  string
	Message string
	// Details holds the individual messages of a multi-error failure.
	Details   []string
	RequestID string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// Messages returns every message carried by the failure.
func (e *PlatformError) Messages() []string {
	if len(e.Details) > 0 {
		return e.Details
	}
	return []string{e.Message}
}

var transientStatuses = map[string]bool{
	"UNAVAILABLE":        true,
	"INTERNAL":           true,
	"DEADLINE_EXCEEDED":  true,
	"RESOURCE_EXHAUSTED": true,
	"ABORTED":            true,
	"UNKNOWN":            true,
}

// Transient reports whether repeating the call may succeed.
func (e *PlatformError) Transient() bool {
	return transientStatuses[e.Status]
}

// TransportError is a failure below the platform: an HTTP 4xx without a
// structured payload, a refused OAuth token, or a network error (StatusCode 0).
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("ApiException was thrown with message '%s'.", e.Message)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// ClientSide reports a 4xx-style failure, which is never worth repeating.
func (e *TransportError) ClientSide() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// UserError is a failure the user has to fix. It ends the run.
type UserError struct {
	Message string
	Code    int
}

func (e *UserError) Error() string {
	return e.Message
}

// ToUserError converts gateway failures into the message shown to the user.
// Errors of any other kind are returned unchanged.
func ToUserError(err error) error {
	if err == nil {
		return nil
	}
	var ue *UserError
	if errors.As(err, &ue) {
		return ue
	}
	var te *TransportError
	if errors.As(err, &te) {
		return &UserError{Message: te.Error(), Code: te.StatusCode}
	}
	var pe *PlatformError
	if errors.As(err, &pe) {
		return &UserError{Message: pe.Error(), Code: pe.HTTPStatus}
	}
	return err
}

// IsUserError reports whether err carries a UserError.
func IsUserError(err error) bool {
	var ue *UserError
	return errors.As(err, &ue)
}
