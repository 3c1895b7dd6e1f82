package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilder_DefaultsComponentAndCategoryWhenUnset(t *testing.T) {
	t.Parallel()
	err := New(errors.New("boom")).Build()
	assert.Equal(t, ComponentUnknown, err.Component)
	assert.Equal(t, CategoryGeneric, err.Category)
	assert.Equal(t, "boom", err.Error())
}

func TestBuilder_ChainSetsEveryField(t *testing.T) {
	t.Parallel()
	err := New(errors.New("ffmpeg failed")).
		Component("audio").
		Category(CategoryTranscode).
		Context("path", "/tmp/in.mp3").
		Build()

	assert.Equal(t, "audio", err.Component)
	assert.Equal(t, CategoryTranscode, err.Category)
	assert.Equal(t, "/tmp/in.mp3", err.GetContext()["path"])
}

func TestNewf_FormatsMessage(t *testing.T) {
	t.Parallel()
	err := Newf("stage %s failed after %d attempts", "AUDIO_CHUNKED", 3).Build()
	assert.Equal(t, "stage AUDIO_CHUNKED failed after 3 attempts", err.Error())
}

func TestStageContext_AttachesSessionAndStage(t *testing.T) {
	t.Parallel()
	err := New(errors.New("x")).StageContext("session-9", "AUDIO_TRANSCRIBED").Build()
	ctx := err.GetContext()
	assert.Equal(t, "session-9", ctx["session_id"])
	assert.Equal(t, "AUDIO_TRANSCRIBED", ctx["stage"])
}

func TestUnwrap_ExposesUnderlyingError(t *testing.T) {
	t.Parallel()
	underlying := errors.New("root cause")
	err := New(underlying).Build()
	assert.ErrorIs(t, err, underlying)
}

func TestIs_MatchesSameCategory(t *testing.T) {
	t.Parallel()
	a := New(errors.New("a")).Category(CategoryNetwork).Build()
	b := New(errors.New("b")).Category(CategoryNetwork).Build()
	c := New(errors.New("c")).Category(CategoryTimeout).Build()

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
}

func TestGetContext_ReturnsDefensiveCopy(t *testing.T) {
	t.Parallel()
	err := New(errors.New("x")).Context("key", "value").Build()
	ctx := err.GetContext()
	ctx["key"] = "mutated"
	assert.Equal(t, "value", err.GetContext()["key"])
}
