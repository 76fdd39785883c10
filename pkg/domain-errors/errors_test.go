package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeUnavailable, "contact store unavailable")

	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeUnavailable))
	assert.Equal(t, CodeUnavailable, CodeOf(fmt.Errorf("identify: %w", err)))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "nothing"))
}

func TestCodeOfUncoded(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.False(t, HasCode(errors.New("boom"), CodeNotFound))
}

func TestOutermostCodeWins(t *testing.T) {
	inner := New(CodeNotFound, "primary contact not found")
	outer := Wrap(inner, CodeInternal, "identity chain vanished")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.False(t, HasCode(outer, CodeNotFound))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, CodeValidation.IsClientError())
	assert.True(t, CodeNotFound.IsClientError())
	assert.False(t, CodeInternal.IsClientError())
	assert.False(t, CodeUnavailable.IsClientError())
}
