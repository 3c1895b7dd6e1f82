// Package transcription defines the transcription backend contract and a
// local/remote pair of implementations, mirroring the local-vs-remote split
// used by the diarization and classification backends.
package transcription

import (
	"context"

	"github.com/gambitnl/sessionscribe/internal/model"
)

// Backend transcribes one audio chunk into timestamped segments. The actual
// speech model is an opaque capability outside this repo's scope —
// implementations wrap a local process or a remote API and are otherwise
// interchangeable to the pipeline.
type Backend interface {
	// Transcribe returns the ordered segments found in chunk.
	Transcribe(ctx context.Context, chunk model.AudioChunk, language string) (model.ChunkTranscription, error)
	// Preflight reports any configuration/capability issues before a run
	// starts, so the orchestrator can fail fast with actionable messages.
	Preflight(ctx context.Context) []model.PreflightIssue
	// Name identifies the backend for logging and checkpoint metadata.
	Name() string
}

// Factory builds a Backend for the named variant ("whisper" local,
// "whisper-api" remote), matching the classifier/diarizer factory pattern.
func Factory(backend string, opts Options) (Backend, error) {
	switch backend {
	case "whisper", "":
		return NewLocalWhisper(opts), nil
	case "whisper-api":
		return NewRemoteWhisper(opts), nil
	default:
		return nil, &UnknownBackendError{Backend: backend}
	}
}

// Options configures either backend variant.
type Options struct {
	ModelPath   string
	APIURL      string
	APIKey      string
	WorkerCount int
}

// UnknownBackendError is returned by Factory for an unrecognized name.
type UnknownBackendError struct{ Backend string }

func (e *UnknownBackendError) Error() string {
	return "transcription: unknown backend " + e.Backend
}
