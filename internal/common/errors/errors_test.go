package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	err := NewInsufficientFundsError("1001")
	assert.Equal(t, ErrCodeInsufficientFunds, CodeOf(err))

	wrapped := fmt.Errorf("executing transfer: %w", err)
	assert.Equal(t, ErrCodeInsufficientFunds, CodeOf(wrapped))

	assert.Equal(t, ErrorCode(""), CodeOf(stderrors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestCodeOfNestedStandardErrors(t *testing.T) {
	// The outermost code wins; classification wraps, never replaces.
	inner := NewSameAccountTransferError("1001")
	outer := NewDispatchFailedError("transfer", inner)
	assert.Equal(t, ErrCodeDispatchFailed, CodeOf(outer))
}

func TestIsCode(t *testing.T) {
	err := NewReplayedTokenError("tok-1")
	assert.True(t, IsCode(err, ErrCodeReplayedToken))
	assert.False(t, IsCode(err, ErrCodeDispatchUnknown))
}

func TestDispatchCodesNeverRetry(t *testing.T) {
	for _, code := range []ErrorCode{ErrCodeDispatchFailed, ErrCodeDispatchUnknown, ErrCodeReplayedToken} {
		assert.Zero(t, GetRetryCount(code), string(code))
	}
	assert.Equal(t, 3, GetRetryCount(ErrCodePinVerifyFailed))
}

func TestErrorCategories(t *testing.T) {
	assert.Equal(t, "dispatch", GetErrorCategory(ErrCodeDispatchUnknown))
	assert.Equal(t, "security", GetErrorCategory(ErrCodePinAttemptsExceeded))
	assert.Equal(t, "banking", GetErrorCategory(ErrCodeInsufficientFunds))
	assert.Equal(t, "infrastructure", GetErrorCategory(ErrCodeSessionStoreFailed))
}
