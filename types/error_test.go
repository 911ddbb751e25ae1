package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := NewError(ErrToolNotFound, "no such tool").WithTool("order_summary")
	assert.Equal(t, "[TOOL_NOT_FOUND] no such tool", err.Error())

	cause := errors.New("dial tcp: connection refused")
	err = NewError(ErrCapabilityUnavailable, "inventory group down").WithCause(cause)
	assert.Contains(t, err.Error(), "CAPABILITY_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

func TestError_Retryable(t *testing.T) {
	err := NewError(ErrCapabilityTimeout, "deadline exceeded").WithRetryable(true)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(NewError(ErrInvalidHandoff, "no edge")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NewError(ErrCapabilityTimeout, "t")))
	assert.True(t, IsTransient(NewError(ErrCapabilityUnavailable, "u")))
	assert.False(t, IsTransient(NewError(ErrToolNotFound, "n")))
	assert.False(t, IsTransient(NewError(ErrInvalidHandoff, "h")))
	assert.False(t, IsTransient(nil))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrQueueExhausted, GetErrorCode(NewError(ErrQueueExhausted, "full")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestTaxonomySurvivesWrapping(t *testing.T) {
	inner := NewError(ErrCapabilityTimeout, "deadline exceeded").WithRetryable(true)
	wrapped := fmt.Errorf("queue: replay seq 7: %w", inner)

	assert.Equal(t, ErrCapabilityTimeout, GetErrorCode(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.True(t, IsTransient(wrapped))

	twice := fmt.Errorf("outer: %w", wrapped)
	assert.Equal(t, ErrCapabilityTimeout, GetErrorCode(twice))
}
