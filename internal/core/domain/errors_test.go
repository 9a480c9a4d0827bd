package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByKindOnly(t *testing.T) {
	err := NewNotFoundError("store.get", fmt.Errorf("wrapped"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
}

func TestErrorUnwrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := NewIOFailureError("store.write", cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestKindOfNonDomainError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(fmt.Errorf("plain error")))
	assert.Equal(t, KindIntegrityError, KindOf(NewIntegrityError("custody.verify", "deadbeef", fmt.Errorf("chain broken"))))
}

func TestRetryableOnlyForTransientKinds(t *testing.T) {
	assert.True(t, Retryable(NewAITimeoutError("ai.call", fmt.Errorf("timeout"))))
	assert.True(t, Retryable(NewAIRateLimitedError("ai.call", fmt.Errorf("429"))))
	assert.False(t, Retryable(NewAIRefusalError("ai.call", fmt.Errorf("refused"))))
	assert.False(t, Retryable(NewConfigMissingError("ai.call", fmt.Errorf("no key"))))
	assert.False(t, Retryable(fmt.Errorf("not a domain error")))
}

func TestErrorMessageFormatting(t *testing.T) {
	err := &Error{Kind: KindIntegrityError, Op: "custody.verify", Sha256: "abc123", Err: fmt.Errorf("hash mismatch")}
	assert.Equal(t, "IntegrityError: custody.verify (sha256=abc123): hash mismatch", err.Error())

	bare := &Error{Kind: KindNotFound}
	assert.Equal(t, "NotFound", bare.Error())
}
