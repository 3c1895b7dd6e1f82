package snippet

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gambitnl/sessionscribe/internal/audio"
	"github.com/gambitnl/sessionscribe/internal/model"
)

func TestClipFilename_SanitizesSpeakerAndPadsIndex(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "segment_0001_SPEAKER_00.wav", clipFilename(1, "SPEAKER_00"))
	assert.Equal(t, "segment_0002_UNKNOWN.wav", clipFilename(2, ""))
	assert.Equal(t, "segment_0003_a_b.wav", clipFilename(3, "a/b!"))
}

func writeSilentWAV(t *testing.T, path string, seconds float64, sampleRate int) {
	t.Helper()
	samples := make([]float32, int(seconds*float64(sampleRate)))
	require.NoError(t, audio.SaveWAV(path, samples, sampleRate))
}

func TestInitializeManifest_WritesInProgressManifest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	sessionDir := filepath.Join(dir, "session1")
	e := NewExporter(Options{})

	path, err := e.InitializeManifest(sessionDir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var manifest model.Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, model.ManifestInProgress, manifest.Status)
	assert.Equal(t, 0, manifest.TotalClips)
}

func TestExportSegments_FullDecodeProducesClipsAndCompleteManifest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "source.wav")
	writeSilentWAV(t, audioPath, 10, 16000)

	e := NewExporter(Options{UseStreamingExport: false})
	segments := []model.LabeledSegment{
		{StartTime: 0, EndTime: 2, Speaker: "SPEAKER_00", Text: "hello", Classification: model.InCharacter},
		{StartTime: 2, EndTime: 4, Speaker: "SPEAKER_01", Text: "world", Classification: model.OutOfCharacter},
	}

	result, err := e.ExportSegments(context.Background(), audioPath, segments, dir, "sess1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sess1"), result.SegmentsDir)

	data, err := os.ReadFile(result.ManifestPath)
	require.NoError(t, err)
	var manifest model.Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, model.ManifestComplete, manifest.Status)
	require.Len(t, manifest.Clips, 2)
	assert.Equal(t, "SPEAKER_00", manifest.Clips[0].Speaker)

	for _, clip := range manifest.Clips {
		_, err := os.Stat(filepath.Join(result.SegmentsDir, clip.ClipFile))
		assert.NoError(t, err)
	}
}

func TestExportSegments_EmptyWithNoExistingDirReturnsEmptyResult(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	e := NewExporter(Options{})

	result, err := e.ExportSegments(context.Background(), "unused.wav", nil, dir, "sess1")
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
}

func TestExportSegments_EmptyWithCleanStaleClipsWritesPlaceholder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "source.wav")
	writeSilentWAV(t, audioPath, 5, 16000)

	e := NewExporter(Options{UseStreamingExport: false, CleanStaleClips: true})
	_, err := e.ExportSegments(context.Background(), audioPath, []model.LabeledSegment{
		{StartTime: 0, EndTime: 1, Speaker: "SPEAKER_00"},
	}, dir, "sess1")
	require.NoError(t, err)

	result, err := e.ExportSegments(context.Background(), audioPath, nil, dir, "sess1")
	require.NoError(t, err)
	require.NotEmpty(t, result.ManifestPath)

	data, err := os.ReadFile(result.ManifestPath)
	require.NoError(t, err)
	var manifest model.Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, model.ManifestNoSnippets, manifest.Status)
	require.NotNil(t, manifest.Placeholder)
	assert.Equal(t, 1, manifest.Placeholder.RemovedClips)
}

func TestExportIncremental_AppendsToExistingManifest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "source.wav")
	writeSilentWAV(t, audioPath, 5, 16000)
	sessionDir := filepath.Join(dir, "sess1")

	e := NewExporter(Options{UseStreamingExport: false})
	manifestPath, err := e.InitializeManifest(sessionDir)
	require.NoError(t, err)

	seg := model.LabeledSegment{StartTime: 0, EndTime: 1, Speaker: "SPEAKER_00", Text: "hi"}
	require.NoError(t, e.ExportIncremental(context.Background(), audioPath, seg, 1, sessionDir, manifestPath))

	data, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	var manifest model.Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	require.Len(t, manifest.Clips, 1)
	assert.Equal(t, 1, manifest.TotalClips)
}
