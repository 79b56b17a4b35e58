package utils

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrNonRetryable_Error(t *testing.T) {
	assert.Equal(t, "non retryable error: olia", NewErrNonRetryable(errors.New("olia")).Error())
}

func TestErrNonRetryable_Unwrap(t *testing.T) {
	assert.True(t, errors.Is(NewErrNonRetryable(io.EOF), io.EOF))
}

func TestIsNonRetryable(t *testing.T) {
	assert.True(t, IsNonRetryable(NewErrNonRetryable(io.EOF)))
	assert.True(t, IsNonRetryable(fmt.Errorf("wrap: %w", NewErrNonRetryable(io.EOF))))
	assert.False(t, IsNonRetryable(io.EOF))
	assert.False(t, IsNonRetryable(nil))
}
