package checkpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gambitnl/sessionscribe/internal/model"
)

type sampleData struct {
	ChunkCount int    `json:"chunk_count"`
	WavPath    string `json:"wav_path"`
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := New("session-1", dir, nil)
	require.NoError(t, err)
	return m
}

func TestSaveStageDataAndLoad_RoundTrip(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	path, err := m.SaveStageData(model.StageAudioConverted, sampleData{ChunkCount: 3, WavPath: "/tmp/a.wav"})
	require.NoError(t, err)
	require.NoError(t, m.Save(model.StageAudioConverted, path, nil, nil, []model.PipelineStage{model.StageAudioConverted}, nil))

	var loaded sampleData
	ok, err := LoadStageData(path, &loaded)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, loaded.ChunkCount)
	assert.Equal(t, "/tmp/a.wav", loaded.WavPath)
}

func TestLoadStageData_MissingPathIsNotAnError(t *testing.T) {
	t.Parallel()
	var out sampleData
	ok, err := LoadStageData("", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoad_NoCheckpointReturnsNilNotError(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	record, err := m.Load(model.StageAudioConverted)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestSave_RecordsFailureWhenStageErrGiven(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	require.NoError(t, m.Save(model.StageAudioConverted, "", nil, nil, nil, assertErr("ffmpeg exited 1")))

	record, err := m.Load(model.StageAudioConverted)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.False(t, record.Success)
	assert.Equal(t, "ffmpeg exited 1", record.Error)
}

func TestHasCheckpoint(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	assert.False(t, m.HasCheckpoint(model.StageAudioConverted))

	require.NoError(t, m.Save(model.StageAudioConverted, "", nil, nil, nil, nil))
	assert.True(t, m.HasCheckpoint(model.StageAudioConverted))
}

func TestListStages_SortedAndFiltered(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	require.NoError(t, m.Save(model.StageAudioChunked, "", nil, nil, nil, nil))
	require.NoError(t, m.Save(model.StageAudioConverted, "", nil, nil, nil, nil))

	stages, err := m.ListStages()
	require.NoError(t, err)
	assert.Equal(t, []model.PipelineStage{model.StageAudioChunked, model.StageAudioConverted}, stages)
}

func TestLatest_ReturnsMostRecentlyWritten(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	require.NoError(t, m.Save(model.StageAudioConverted, "", nil, nil, nil, nil))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Save(model.StageAudioChunked, "", nil, nil, nil, nil))

	latest, err := m.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, model.StageAudioChunked, latest.Stage)
}

func TestClear_RemovesCheckpointsButKeepsDirUsable(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	require.NoError(t, m.Save(model.StageAudioConverted, "", nil, nil, nil, nil))

	require.NoError(t, m.Clear())

	stages, err := m.ListStages()
	require.NoError(t, err)
	assert.Empty(t, stages)

	// Directory must still be writable for a subsequent Save.
	require.NoError(t, m.Save(model.StageAudioConverted, "", nil, nil, nil, nil))
}

func TestWriteBlobAndReadBlob_RoundTrip(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	path, err := m.WriteBlob(model.StageAudioTranscribed, "chunks", []byte(`{"hello":"world"}`))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path) || filepath.Dir(path) != "")

	raw, err := ReadBlob(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(raw))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
