package diarization

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/gambitnl/sessionscribe/internal/audio"
	"github.com/gambitnl/sessionscribe/internal/model"
)

type embeddingDevice int

const (
	deviceCPU embeddingDevice = iota
	deviceCUDA
)

// Pipeline is the opaque local diarization model capability (e.g. a loaded
// PyAnnote-equivalent pipeline). Real model loading is outside this repo's
// scope; tests and callers without a GPU-backed model supply nil, which
// routes diarization through the single-speaker fallback exactly as the
// original does when its pipeline fails to load.
type Pipeline interface {
	Diarize(samples []float32, sampleRate int, numSpeakers int) ([]model.SpeakerSegment, error)
}

// LocalDiarizer wraps a lazily-loaded local Pipeline, degrading embedding
// inference from CUDA to CPU the first time a CUDA error is observed and
// staying on CPU for the rest of the session.
type LocalDiarizer struct {
	opts Options

	mu       sync.Mutex
	pipeline Pipeline
	device   embeddingDevice
	cudaFailed bool

	logger *slog.Logger
}

// NewLocalDiarizer returns a Backend around a lazily-loaded local pipeline.
func NewLocalDiarizer(opts Options) *LocalDiarizer {
	return &LocalDiarizer{opts: opts, device: deviceCUDA, logger: slog.Default()}
}

// SetPipeline injects the loaded model; intended for use once a real
// pipeline loader is wired in, and for tests.
func (d *LocalDiarizer) SetPipeline(p Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipeline = p
}

func (d *LocalDiarizer) Name() string { return "pyannote" }

func (d *LocalDiarizer) Preflight(ctx context.Context) []model.PreflightIssue {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline == nil {
		return []model.PreflightIssue{{
			Component: "diarizer",
			Message:   "local diarization pipeline not loaded; will fall back to single-speaker output",
		}}
	}
	return nil
}

func (d *LocalDiarizer) Diarize(ctx context.Context, wavPath string) ([]model.SpeakerSegment, error) {
	d.mu.Lock()
	pipeline := d.pipeline
	d.mu.Unlock()

	if pipeline == nil {
		return d.fallbackDiarization(wavPath)
	}

	samples, sr, err := audio.LoadWAV(wavPath)
	if err != nil {
		return nil, err
	}

	segments, err := pipeline.Diarize(samples, sr, d.opts.NumSpeakers)
	if err != nil {
		if isCUDAError(err) {
			d.degradeToCPU(err)
			segments, err = pipeline.Diarize(samples, sr, d.opts.NumSpeakers)
		}
		if err != nil {
			return nil, err
		}
	}
	return segments, nil
}

func (d *LocalDiarizer) degradeToCPU(cause error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == deviceCPU {
		return
	}
	if !d.cudaFailed {
		d.logger.Warn("CUDA embedding failed, switching to CPU for remainder of session", "error", cause)
		d.cudaFailed = true
	}
	d.device = deviceCPU
}

func isCUDAError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "cuda error")
}

// fallbackDiarization returns one speaker segment spanning the entire file,
// identical to the original's behavior when its model fails to load.
func (d *LocalDiarizer) fallbackDiarization(wavPath string) ([]model.SpeakerSegment, error) {
	samples, sr, err := audio.LoadWAV(wavPath)
	if err != nil {
		return nil, err
	}
	duration := float64(len(samples)) / float64(sr)
	return []model.SpeakerSegment{{Speaker: "SPEAKER_00", StartTime: 0, EndTime: duration}}, nil
}
