// Package checkpoint persists and restores per-stage pipeline state so a
// run interrupted after stage N can resume at N+1 instead of reprocessing
// the whole session.
package checkpoint

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
	"github.com/gambitnl/sessionscribe/internal/model"
)

var unsafeStageChars = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// Manager owns the checkpoint directory for one session. It is the only
// writer of that directory; callers must not share a Manager across
// sessions.
type Manager struct {
	sessionID string
	dir       string
	logger    *slog.Logger
}

// New creates (if needed) the checkpoint directory and returns a Manager
// bound to it.
func New(sessionID, dir string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.New(fmt.Errorf("create checkpoint dir: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryFileIO).Build()
	}
	return &Manager{sessionID: sessionID, dir: dir, logger: logger.With("session_id", sessionID)}, nil
}

func safeStage(stage model.PipelineStage) string {
	return unsafeStageChars.ReplaceAllString(string(stage), "_")
}

func (m *Manager) stagePath(stage model.PipelineStage) string {
	return filepath.Join(m.dir, fmt.Sprintf("checkpoint_%s.json", safeStage(stage)))
}

// BlobPath returns the path a gzip-compressed sidecar for stage/name should
// live at. Large payloads (chunk PCM, merged transcript text) are written
// here instead of inline in the JSON checkpoint record, which stays small
// and fast to scan when resuming.
func (m *Manager) BlobPath(stage model.PipelineStage, name string) string {
	return filepath.Join(m.dir, fmt.Sprintf("blob_%s_%s.gz", safeStage(stage), unsafeStageChars.ReplaceAllString(name, "_")))
}

// WriteBlob gzip-compresses data and writes it to BlobPath(stage, name),
// returning that path for inclusion in the checkpoint record's BlobPaths.
func (m *Manager) WriteBlob(stage model.PipelineStage, name string, data []byte) (string, error) {
	path := m.BlobPath(stage, name)
	f, err := os.Create(path)
	if err != nil {
		return "", apperrors.New(fmt.Errorf("create blob: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryFileIO).Build()
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return "", apperrors.New(fmt.Errorf("write blob: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryFileIO).Build()
	}
	if err := gw.Close(); err != nil {
		return "", apperrors.New(fmt.Errorf("flush blob: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryFileIO).Build()
	}
	return path, nil
}

// ReadBlob decompresses a blob previously written by WriteBlob.
func ReadBlob(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.New(fmt.Errorf("open blob: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryFileIO).Build()
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, apperrors.New(fmt.Errorf("decompress blob: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryCheckpointCorruption).Build()
	}
	defer gr.Close()

	data, err := io.ReadAll(gr)
	if err != nil {
		return nil, apperrors.New(fmt.Errorf("read blob: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryCheckpointCorruption).Build()
	}
	return data, nil
}

// dataPath returns where SaveStageData stores the small, uncompressed JSON
// sidecar a checkpoint record's DataPath points at — distinct from
// WriteBlob's gzip sidecars, which are reserved for large payloads (chunk
// PCM references, full transcript text).
func (m *Manager) dataPath(stage model.PipelineStage) string {
	return filepath.Join(m.dir, fmt.Sprintf("data_%s.json", safeStage(stage)))
}

// SaveStageData marshals data to JSON at stage's data sidecar path,
// returning that path for use as a checkpoint record's DataPath.
func (m *Manager) SaveStageData(stage model.PipelineStage, data any) (string, error) {
	path := m.dataPath(stage)
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", apperrors.New(fmt.Errorf("marshal stage data: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryCheckpointCorruption).Build()
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", apperrors.New(fmt.Errorf("write stage data: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryFileIO).Build()
	}
	return path, nil
}

// LoadStageData unmarshals the JSON sidecar at path into out. A missing
// file is reported via the returned bool (false, nil error) rather than an
// error, matching Load's "no checkpoint yet" convention.
func LoadStageData(path string, out any) (bool, error) {
	if path == "" {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, apperrors.New(fmt.Errorf("read stage data: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryFileIO).Build()
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, apperrors.New(fmt.Errorf("parse stage data %s: %w", path, err)).
			Component("checkpoint").Category(apperrors.CategoryCheckpointCorruption).Build()
	}
	return true, nil
}

// Save persists a checkpoint record for stage. blobPaths are only recorded
// in it; the caller writes the blobs via WriteBlob before calling Save. A
// non-nil stageErr is stored in the record as a failure, not returned: Save
// returns an error only when the record cannot be written.
func (m *Manager) Save(stage model.PipelineStage, dataPath string, blobPaths []string, metadata map[string]string, completedStages []model.PipelineStage, stageErr error) error {
	record := model.CheckpointRecord{
		SessionID:       m.sessionID,
		Stage:           stage,
		Timestamp:       time.Now().UTC(),
		Success:         stageErr == nil,
		DataPath:        dataPath,
		BlobPaths:       blobPaths,
		Metadata:        metadata,
		CompletedStages: completedStages,
	}
	if stageErr != nil {
		record.Error = stageErr.Error()
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return apperrors.New(fmt.Errorf("marshal checkpoint: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryCheckpointCorruption).Build()
	}
	path := m.stagePath(stage)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.New(fmt.Errorf("write checkpoint: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryFileIO).Build()
	}
	m.logger.Info("checkpoint saved", "stage", stage, "path", path)
	return nil
}

// Load reads the checkpoint record for stage, returning (nil, nil) if none
// exists — a missing checkpoint is not an error, it's "stage not run yet".
func (m *Manager) Load(stage model.PipelineStage) (*model.CheckpointRecord, error) {
	path := m.stagePath(stage)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.New(fmt.Errorf("read checkpoint: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryFileIO).Build()
	}
	var record model.CheckpointRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, apperrors.New(fmt.Errorf("parse checkpoint %s: %w", path, err)).
			Component("checkpoint").Category(apperrors.CategoryCheckpointCorruption).Build()
	}
	return &record, nil
}

// HasCheckpoint reports whether stage has a saved checkpoint.
func (m *Manager) HasCheckpoint(stage model.PipelineStage) bool {
	_, err := os.Stat(m.stagePath(stage))
	return err == nil
}

// ListStages returns every stage with a saved checkpoint, sorted.
func (m *Manager) ListStages() ([]model.PipelineStage, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.New(fmt.Errorf("list checkpoint dir: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryFileIO).Build()
	}
	var stages []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "checkpoint_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		stages = append(stages, strings.TrimSuffix(strings.TrimPrefix(name, "checkpoint_"), ".json"))
	}
	sort.Strings(stages)

	result := make([]model.PipelineStage, len(stages))
	for i, s := range stages {
		result[i] = model.PipelineStage(s)
	}
	return result, nil
}

// Latest returns the most recently written checkpoint record, or nil if
// none exist.
func (m *Manager) Latest() (*model.CheckpointRecord, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.New(fmt.Errorf("list checkpoint dir: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryFileIO).Build()
	}

	var latestPath string
	var latestMod time.Time
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "checkpoint_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latestPath == "" || info.ModTime().After(latestMod) {
			latestPath = name
			latestMod = info.ModTime()
		}
	}
	if latestPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(filepath.Join(m.dir, latestPath))
	if err != nil {
		return nil, apperrors.New(fmt.Errorf("read latest checkpoint: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryFileIO).Build()
	}
	var record model.CheckpointRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, apperrors.New(fmt.Errorf("parse latest checkpoint: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryCheckpointCorruption).Build()
	}
	return &record, nil
}

// Clear removes every checkpoint and blob file for the session, leaving the
// (now empty) directory in place so subsequent Save calls don't need to
// recreate it.
func (m *Manager) Clear() error {
	if err := os.RemoveAll(m.dir); err != nil {
		return apperrors.New(fmt.Errorf("clear checkpoint dir: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryFileIO).Build()
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return apperrors.New(fmt.Errorf("recreate checkpoint dir: %w", err)).
			Component("checkpoint").Category(apperrors.CategoryFileIO).Build()
	}
	m.logger.Info("checkpoints cleared", "session_id", m.sessionID)
	return nil
}
