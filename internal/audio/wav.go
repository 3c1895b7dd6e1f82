package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
)

// LoadWAV reads path's PCM samples as float32 mono at its native sample
// rate, matching the original's soundfile.read + float32 cast.
func LoadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, apperrors.New(fmt.Errorf("open wav: %w", err)).
			Component("audio").Category(apperrors.CategoryFileIO).Build()
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, apperrors.New(fmt.Errorf("decode wav: %w", err)).
			Component("audio").Category(apperrors.CategoryTranscode).Build()
	}

	samples := buf.AsFloat32Buffer().Data
	return samples, int(dec.SampleRate), nil
}

// SaveWAV writes mono float32 PCM samples to path at sampleRate.
func SaveWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.New(fmt.Errorf("create wav: %w", err)).
			Component("audio").Category(apperrors.CategoryFileIO).Build()
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.FloatBuffer{
		Format: &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		Data:   make([]float64, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = float64(s)
	}
	if err := enc.Write(buf.AsIntBuffer()); err != nil {
		return apperrors.New(fmt.Errorf("write wav: %w", err)).
			Component("audio").Category(apperrors.CategoryFileIO).Build()
	}
	return enc.Close()
}

// NormalizeAudio peak-normalizes samples in place semantics (returns a new
// slice), leaving silence untouched — identical to the original's
// normalize_audio.
func NormalizeAudio(samples []float32) []float32 {
	var peak float32
	for _, s := range samples {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}
	if peak <= 0 {
		return samples
	}
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = s / peak
	}
	return out
}
