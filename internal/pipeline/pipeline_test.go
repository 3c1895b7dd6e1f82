package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gambitnl/sessionscribe/internal/checkpoint"
	"github.com/gambitnl/sessionscribe/internal/config"
	"github.com/gambitnl/sessionscribe/internal/model"
	"github.com/gambitnl/sessionscribe/internal/session"
)

// fakeTranscriptionBackend returns a single segment echoing the chunk's own
// index as text, so ordering can be checked after the concurrent fan-out.
type fakeTranscriptionBackend struct{}

func (fakeTranscriptionBackend) Transcribe(ctx context.Context, chunk model.AudioChunk, language string) (model.ChunkTranscription, error) {
	return model.ChunkTranscription{
		ChunkIndex: chunk.ChunkIndex,
		StartTime:  chunk.StartTime,
		EndTime:    chunk.EndTime,
		Segments: []model.TranscriptionSegment{
			{StartTime: chunk.StartTime, EndTime: chunk.EndTime, Text: "chunk"},
		},
	}, nil
}
func (fakeTranscriptionBackend) Preflight(ctx context.Context) []model.PreflightIssue { return nil }
func (fakeTranscriptionBackend) Name() string                                         { return "fake" }

func newTestProcessor(t *testing.T, workers int) *Processor {
	t.Helper()
	checkpoints, err := checkpoint.New("sess1", t.TempDir(), nil)
	require.NoError(t, err)

	p, err := New(Config{
		Session:       &session.Session{ID: "sess1"},
		Settings:      &config.Settings{TranscriptionWorkers: workers},
		Checkpoints:   checkpoints,
		Transcription: fakeTranscriptionBackend{},
	})
	require.NoError(t, err)
	return p
}

func TestStageAudioTranscribed_RestoresOrderAcrossConcurrentWorkers(t *testing.T) {
	p := newTestProcessor(t, 4)

	chunks := make([]model.AudioChunk, 20)
	for i := range chunks {
		chunks[i] = model.AudioChunk{ChunkIndex: i, StartTime: float64(i), EndTime: float64(i + 1)}
	}

	results, err := p.stageAudioTranscribed(context.Background(), chunks, map[string]string{}, completedSet{})
	require.NoError(t, err)
	require.Len(t, results, 20)
	for i, r := range results {
		assert.Equal(t, i, r.ChunkIndex)
		assert.InDelta(t, float64(i), r.StartTime, 0.0001)
	}
}

func TestStageAudioTranscribed_SingleWorkerStillOrdersCorrectly(t *testing.T) {
	p := newTestProcessor(t, 1)

	chunks := []model.AudioChunk{
		{ChunkIndex: 0, StartTime: 0, EndTime: 1},
		{ChunkIndex: 1, StartTime: 1, EndTime: 2},
	}
	results, err := p.stageAudioTranscribed(context.Background(), chunks, map[string]string{}, completedSet{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].ChunkIndex)
	assert.Equal(t, 1, results[1].ChunkIndex)
}

type failingOnceTranscriptionBackend struct{ failIndex int }

func (f failingOnceTranscriptionBackend) Transcribe(ctx context.Context, chunk model.AudioChunk, language string) (model.ChunkTranscription, error) {
	if chunk.ChunkIndex == f.failIndex {
		return model.ChunkTranscription{}, assert.AnError
	}
	return model.ChunkTranscription{ChunkIndex: chunk.ChunkIndex}, nil
}
func (failingOnceTranscriptionBackend) Preflight(ctx context.Context) []model.PreflightIssue {
	return nil
}
func (failingOnceTranscriptionBackend) Name() string { return "failing" }

func TestStageAudioTranscribed_OneChunkFailurePropagatesAndCancelsSiblings(t *testing.T) {
	checkpoints, err := checkpoint.New("sess2", t.TempDir(), nil)
	require.NoError(t, err)
	p, err := New(Config{
		Session:       &session.Session{ID: "sess2"},
		Settings:      &config.Settings{TranscriptionWorkers: 2},
		Checkpoints:   checkpoints,
		Transcription: failingOnceTranscriptionBackend{failIndex: 1},
	})
	require.NoError(t, err)

	chunks := []model.AudioChunk{
		{ChunkIndex: 0}, {ChunkIndex: 1}, {ChunkIndex: 2},
	}
	_, err = p.stageAudioTranscribed(context.Background(), chunks, map[string]string{}, completedSet{})
	assert.Error(t, err)
}
