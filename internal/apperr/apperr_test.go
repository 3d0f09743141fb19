package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCauseReachable(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Wrap(CodeEncodingFailure, "render failed", cause).WithStage("assembling")

	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, CodeEncodingFailure))
	assert.Equal(t, "assembling", GetStage(err))
	assert.Equal(t, "[1400 assembling] render failed: exit status 1", err.Error())
}

func TestSentinelMatchingThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("compose: %w", Wrap(CodeNoClips, "nothing to do", nil))

	assert.ErrorIs(t, err, ErrNoClips)
	assert.ErrorIs(t, err, ErrCompositionFailure)
	assert.NotErrorIs(t, err, ErrEncodingFailure)
	assert.Equal(t, CodeNoClips, GetCode(err))
	assert.Equal(t, "composition_failure", Kind(GetCode(err)))
}

func TestPlainErrorsFallBackToUnknown(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, CodeUnknown, GetCode(err))
	assert.Equal(t, "", GetStage(err))
	assert.Equal(t, "boom", GetMessage(err))
	assert.False(t, Is(err, CodeUnknown))
}

func TestWithStageDoesNotMutateSentinel(t *testing.T) {
	tagged := ErrPublishFailure.WithStage("publishing")

	assert.Equal(t, "publishing", tagged.Stage)
	assert.Empty(t, ErrPublishFailure.Stage)
}
