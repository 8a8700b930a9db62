package extractor

import (
	"context"
	"errors"

	"github.com/dvloznov/ads-extractor/internal/ads"
	"github.com/dvloznov/ads-extractor/internal/output"
	"github.com/dvloznov/ads-extractor/internal/schema"
)

// Scope tells the orchestrator how far a failure reaches.
type Scope int

const (
	// ScopeRun failures end the whole run.
	ScopeRun Scope = iota + 1
	// ScopeAccount failures are logged and the run moves on to the next account.
	ScopeAccount
)

func (s Scope) String() string {
	switch s {
	case ScopeRun:
		return "run"
	case ScopeAccount:
		return "account"
	}
	return "unknown"
}

// Classify decides the scope of a report extraction failure.
func Classify(err error) Scope {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ScopeRun
	}

	var pkErr *schema.PrimaryKeyError
	if errors.As(err, &pkErr) {
		return ScopeRun
	}
	var ue *ads.UserError
	if errors.As(err, &ue) {
		return ScopeRun
	}
	var te *ads.TransportError
	if errors.As(err, &te) {
		if te.ClientSide() {
			return ScopeRun
		}
		return ScopeAccount
	}
	var pe *ads.PlatformError
	if errors.As(err, &pe) {
		return ScopeAccount
	}
	if errors.Is(err, output.ErrSchemaMismatch) {
		return ScopeAccount
	}
	return ScopeRun
}

// IsRetryable reports whether a failed report attempt may be repeated:
// transient platform failures and network errors.
func IsRetryable(err error) bool {
	var pe *ads.PlatformError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	var te *ads.TransportError
	if errors.As(err, &te) {
		return te.StatusCode == 0 || te.StatusCode >= 500
	}
	return false
}

// userFacing converts errors that end the run into the message shown to the user.
func userFacing(err error) error {
	var pkErr *schema.PrimaryKeyError
	if errors.As(err, &pkErr) {
		return &ads.UserError{Message: pkErr.Error()}
	}
	return ads.ToUserError(err)
}

// failureMessage returns the gateway's own message when there is one.
func failureMessage(err error) string {
	var pe *ads.PlatformError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	var te *ads.TransportError
	if errors.As(err, &te) {
		return te.Error()
	}
	return err.Error()
}
