// Package errs implements the agentloop error taxonomy: a closed set of
// error kinds, grouped into families, that every subsystem uses to classify
// failures instead of returning bare strings.
package errs

import (
	"errors"
	"fmt"
)

// Family groups related Kinds for coarse-grained handling (e.g. "is this a
// Provider-family error eligible for retry classification").
type Family string

const (
	FamilyUserInput Family = "user_input"
	FamilyPolicy    Family = "policy"
	FamilyRuntime   Family = "runtime"
	FamilyProvider  Family = "provider"
	FamilyLoop      Family = "loop"
	FamilyInternal  Family = "internal"
)

// Kind is one specific error classification from spec §7.
type Kind string

const (
	// UserInput family
	KindInvalidArguments Kind = "invalid_arguments"
	KindToolNotFound     Kind = "tool_not_found"
	KindToolDisabled     Kind = "tool_disabled"
	KindToolBlocked      Kind = "tool_blocked"

	// Policy family
	KindApprovalDenied     Kind = "approval_denied"
	KindApprovalPending    Kind = "approval_pending"
	KindRateLimitExceeded  Kind = "rate_limit_exceeded"
	KindContextOverflow    Kind = "context_overflow"

	// Runtime family
	KindToolTimeout              Kind = "tool_timeout"
	KindToolCircuitOpen          Kind = "tool_circuit_open"
	KindToolExecutionError       Kind = "tool_execution_error"
	KindMaxConsecutiveToolErrors Kind = "max_consecutive_tool_errors"

	// Provider family
	KindProviderAuth          Kind = "provider_auth"
	KindProviderRateLimit     Kind = "provider_rate_limit"
	KindProviderContextLength Kind = "provider_context_length"
	KindProviderTransport     Kind = "provider_transport"
	KindProviderServer        Kind = "provider_server"
	KindProviderInvalidReq    Kind = "provider_invalid_request"

	// Loop family
	KindIterationLimitExceeded Kind = "iteration_limit_exceeded"
	KindExecutionTimeout       Kind = "execution_timeout"
	KindCancelled              Kind = "cancelled"

	// Internal family
	KindHookFailure     Kind = "hook_failure"
	KindStateCorruption Kind = "state_corruption"
)

var familyOf = map[Kind]Family{
	KindInvalidArguments: FamilyUserInput,
	KindToolNotFound:     FamilyUserInput,
	KindToolDisabled:     FamilyUserInput,
	KindToolBlocked:      FamilyUserInput,

	KindApprovalDenied:    FamilyPolicy,
	KindApprovalPending:   FamilyPolicy,
	KindRateLimitExceeded: FamilyPolicy,
	KindContextOverflow:   FamilyPolicy,

	KindToolTimeout:              FamilyRuntime,
	KindToolCircuitOpen:          FamilyRuntime,
	KindToolExecutionError:       FamilyRuntime,
	KindMaxConsecutiveToolErrors: FamilyRuntime,

	KindProviderAuth:          FamilyProvider,
	KindProviderRateLimit:     FamilyProvider,
	KindProviderContextLength: FamilyProvider,
	KindProviderTransport:     FamilyProvider,
	KindProviderServer:        FamilyProvider,
	KindProviderInvalidReq:    FamilyProvider,

	KindIterationLimitExceeded: FamilyLoop,
	KindExecutionTimeout:       FamilyLoop,
	KindCancelled:              FamilyLoop,

	KindHookFailure:     FamilyInternal,
	KindStateCorruption: FamilyInternal,
}

// Family returns the family a Kind belongs to.
func (k Kind) Family() Family {
	return familyOf[k]
}

// Error is the single error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a classified error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an existing error under kind, preserving it as the cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or "" if err is not a classified Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
