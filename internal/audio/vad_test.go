package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(windows int, windowSize int) []float32 {
	out := make([]float32, windows*windowSize)
	for i := range out {
		out[i] = 1.0
	}
	return out
}

func silence(windows int, windowSize int) []float32 {
	return make([]float32, windows*windowSize)
}

func TestEnergyVAD_DetectSpeech_EmptyInputReturnsNil(t *testing.T) {
	t.Parallel()
	v := NewEnergyVAD()
	segs, err := v.DetectSpeech(nil, 16000, 0.5)
	require.NoError(t, err)
	assert.Nil(t, segs)
}

func TestEnergyVAD_DetectSpeech_AllSilenceReturnsNil(t *testing.T) {
	t.Parallel()
	v := &EnergyVAD{WindowMS: 10, MinSpeechDurationMS: 20, MinSilenceDurationMS: 20}
	samples := silence(20, 10)
	segs, err := v.DetectSpeech(samples, 1000, 0.5)
	require.NoError(t, err)
	assert.Nil(t, segs)
}

func TestEnergyVAD_DetectSpeech_MergesShortGapBetweenSpeechBlocks(t *testing.T) {
	t.Parallel()
	v := &EnergyVAD{WindowMS: 10, MinSpeechDurationMS: 20, MinSilenceDurationMS: 30}
	windowSize := 10 // sampleRate 1000 * 10ms / 1000

	var samples []float32
	samples = append(samples, silence(5, windowSize)...)
	samples = append(samples, tone(5, windowSize)...)
	samples = append(samples, silence(1, windowSize)...) // gap shorter than minSilenceWindows
	samples = append(samples, tone(5, windowSize)...)
	samples = append(samples, silence(5, windowSize)...)

	segs, err := v.DetectSpeech(samples, 1000, 0.5)
	require.NoError(t, err)
	require.Len(t, segs, 1)
}

func TestEnergyVAD_DetectSpeech_KeepsLongGapAsTwoSegments(t *testing.T) {
	t.Parallel()
	v := &EnergyVAD{WindowMS: 10, MinSpeechDurationMS: 20, MinSilenceDurationMS: 20}
	windowSize := 10

	var samples []float32
	samples = append(samples, tone(5, windowSize)...)
	samples = append(samples, silence(10, windowSize)...) // gap longer than minSilenceWindows
	samples = append(samples, tone(5, windowSize)...)

	segs, err := v.DetectSpeech(samples, 1000, 0.5)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Less(t, segs[0].End, segs[1].Start)
}
