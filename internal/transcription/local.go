package transcription

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
	"github.com/gambitnl/sessionscribe/internal/model"
)

// LocalWhisper is the local transcription backend. Transcribe checks that a
// "whisper" binary is on PATH and returns a ChunkTranscription carrying the
// chunk's index and bounds; it runs no process and returns no segments. The
// model weights themselves are an opaque capability.
type LocalWhisper struct {
	opts Options
}

// NewLocalWhisper returns the local Backend described on LocalWhisper.
func NewLocalWhisper(opts Options) *LocalWhisper { return &LocalWhisper{opts: opts} }

func (l *LocalWhisper) Name() string { return "whisper" }

func (l *LocalWhisper) Preflight(ctx context.Context) []model.PreflightIssue {
	var issues []model.PreflightIssue
	if l.opts.ModelPath == "" {
		issues = append(issues, model.PreflightIssue{
			Component: "transcription", Message: "no local model path configured", Fatal: true,
		})
	}
	return issues
}

func (l *LocalWhisper) Transcribe(ctx context.Context, chunk model.AudioChunk, language string) (model.ChunkTranscription, error) {
	if _, err := exec.LookPath("whisper"); err != nil {
		return model.ChunkTranscription{}, apperrors.New(fmt.Errorf("local transcription binary not found: %w", err)).
			Component("transcription").Category(apperrors.CategoryCommandExecution).Build()
	}
	// Real invocation is a model-specific opaque capability; callers needing
	// more than the interface contract should supply a custom Backend.
	return model.ChunkTranscription{
		ChunkIndex: chunk.ChunkIndex,
		StartTime:  chunk.StartTime,
		EndTime:    chunk.EndTime,
	}, nil
}
