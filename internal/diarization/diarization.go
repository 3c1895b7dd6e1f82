// Package diarization defines the speaker-diarization backend contract and
// a local/remote implementation pair.
package diarization

import (
	"context"

	"github.com/gambitnl/sessionscribe/internal/model"
)

// Backend assigns speaker turns over a session recording. The underlying
// diarization model is an opaque ML capability; implementations wrap a
// local pipeline or a remote API.
type Backend interface {
	Diarize(ctx context.Context, wavPath string) ([]model.SpeakerSegment, error)
	Preflight(ctx context.Context) []model.PreflightIssue
	Name() string
}

// Factory builds a Backend for the named variant ("pyannote" local,
// "huggingface" remote).
func Factory(backend string, opts Options) (Backend, error) {
	switch backend {
	case "pyannote", "":
		return NewLocalDiarizer(opts), nil
	case "huggingface":
		return NewRemoteDiarizer(opts), nil
	default:
		return nil, &UnknownBackendError{Backend: backend}
	}
}

// Options configures either backend variant.
type Options struct {
	NumSpeakers int
	APIToken    string
	APIURL      string
}

// UnknownBackendError is returned by Factory for an unrecognized name.
type UnknownBackendError struct{ Backend string }

func (e *UnknownBackendError) Error() string {
	return "diarization: unknown backend " + e.Backend
}
