package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindRoundTrip(t *testing.T) {
	err := FailedPrecondition("COMMAND-App10", "concurrency conflict", nil)
	kind, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, KindFailedPrecondition, kind)
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Internal("COMMAND-App99", "unexpected", cause)
	assert.ErrorIs(t, err, cause)
}

func TestAsFalseForPlainError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)
}
