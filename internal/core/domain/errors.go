package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the domain-level failure category callers switch on, per the
// error handling design: kinds are programmatic dispatch targets, not just
// presence/absence of failure.
type ErrorKind string

const (
	KindNotFound             ErrorKind = "NotFound"
	KindIntegrityError       ErrorKind = "IntegrityError"
	KindValidationError      ErrorKind = "ValidationError"
	KindAIRefusal            ErrorKind = "AIRefusal"
	KindAIIncomplete         ErrorKind = "AIIncomplete"
	KindAITimeout            ErrorKind = "AITimeout"
	KindAIRateLimited        ErrorKind = "AIRateLimited"
	KindExtractorUnsupported ErrorKind = "ExtractorUnsupported"
	KindIOFailure            ErrorKind = "IOFailure"
	KindConfigMissing        ErrorKind = "ConfigMissing"
)

// sentinels checked with errors.Is; Error.Is matches any *Error of the same
// Kind, so errors.Is(err, ErrNotFound) works regardless of Op/Sha256/wrapped
// cause, the way the teacher's exported sentinel errors are checked.
var (
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrIntegrity            = &Error{Kind: KindIntegrityError}
	ErrValidation           = &Error{Kind: KindValidationError}
	ErrAIRefusal            = &Error{Kind: KindAIRefusal}
	ErrAIIncomplete         = &Error{Kind: KindAIIncomplete}
	ErrAITimeout            = &Error{Kind: KindAITimeout}
	ErrAIRateLimited        = &Error{Kind: KindAIRateLimited}
	ErrExtractorUnsupported = &Error{Kind: KindExtractorUnsupported}
	ErrIOFailure            = &Error{Kind: KindIOFailure}
	ErrConfigMissing        = &Error{Kind: KindConfigMissing}
)

// Error is the structured domain error. Op and Sha256 carry context up to
// the CLI layer and pipeline report without losing the underlying cause.
type Error struct {
	Kind   ErrorKind
	Op     string
	Sha256 string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Sha256 != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s (sha256=%s): %v", e.Kind, e.Op, e.Sha256, e.Err)
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind alone, so a fully-populated *Error compares equal (via
// errors.Is) to the bare sentinel of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func wrap(kind ErrorKind, op, sha256 string, err error) *Error {
	return &Error{Kind: kind, Op: op, Sha256: sha256, Err: err}
}

func NewNotFoundError(op string, err error) *Error  { return wrap(KindNotFound, op, "", err) }
func NewValidationError(op string, err error) *Error {
	return wrap(KindValidationError, op, "", err)
}
func NewIntegrityError(op, sha256 string, err error) *Error {
	return wrap(KindIntegrityError, op, sha256, err)
}
func NewIOFailureError(op string, err error) *Error { return wrap(KindIOFailure, op, "", err) }
func NewConfigMissingError(op string, err error) *Error {
	return wrap(KindConfigMissing, op, "", err)
}
func NewExtractorUnsupportedError(op string, err error) *Error {
	return wrap(KindExtractorUnsupported, op, "", err)
}
func NewAIRefusalError(op string, err error) *Error    { return wrap(KindAIRefusal, op, "", err) }
func NewAIIncompleteError(op string, err error) *Error { return wrap(KindAIIncomplete, op, "", err) }
func NewAITimeoutError(op string, err error) *Error    { return wrap(KindAITimeout, op, "", err) }
func NewAIRateLimitedError(op string, err error) *Error {
	return wrap(KindAIRateLimited, op, "", err)
}

// Retryable reports whether the error kind is transient per the error
// handling design (AITimeout/AIRateLimited are retried with backoff; all
// other kinds are terminal for the call that produced them).
func Retryable(err error) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Kind == KindAITimeout || de.Kind == KindAIRateLimited
}

// KindOf extracts the ErrorKind from err, or "" if err is not a *Error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
