package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeConflict, "budget exhausted")
		assert.True(t, HasCode(err, CodeConflict))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("matches code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("allocate: %w", New(CodeValidation, "bad pair"))
		assert.True(t, HasCode(err, CodeValidation))
	})

	t.Run("matches nested domain error", func(t *testing.T) {
		inner := New(CodePaymentCancelled, "payment was cancelled")
		outer := Wrap(inner, CodeInternal, "session update failed")
		assert.True(t, HasCode(outer, CodePaymentCancelled))
		assert.Equal(t, CodeInternal, CodeOf(outer))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestErrorIsComparesCodeAndMessage(t *testing.T) {
	err := Wrap(errors.New("io"), CodeSubmissionFailed, "failed to submit votes")
	require.ErrorIs(t, err, New(CodeSubmissionFailed, "failed to submit votes"))
	assert.NotErrorIs(t, err, New(CodeSubmissionFailed, "other"))
}
