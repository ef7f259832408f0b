package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorError(t *testing.T) {
	err := New(CodeProbeFailed, "probe failed")
	assert.Contains(t, err.Error(), "1100")
	assert.Contains(t, err.Error(), "probe failed")

	wrapped := Wrap(CodeMuxFailed, "mux failed", errors.New("exit status 1"))
	assert.Contains(t, wrapped.Error(), "exit status 1")
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeFileWriteError, "write failed", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestIsAndGetCode(t *testing.T) {
	err := New(CodeTranslateMismatch, "mismatch")
	assert.True(t, Is(err, CodeTranslateMismatch))
	assert.False(t, Is(err, CodeTranslateFailed))
	assert.Equal(t, CodeTranslateMismatch, GetCode(err))

	// non-AppError
	plain := errors.New("plain")
	assert.False(t, Is(plain, CodeTranslateMismatch))
	assert.Equal(t, CodeUnknown, GetCode(plain))

	// wrapped deeper in a chain
	deep := fmt.Errorf("outer: %w", New(CodeCancelled, "stopped"))
	assert.True(t, Is(deep, CodeCancelled))
}

func TestGetMessage(t *testing.T) {
	assert.Equal(t, "mismatch", GetMessage(New(CodeTranslateMismatch, "mismatch")))
	assert.Equal(t, "plain", GetMessage(errors.New("plain")))
}
