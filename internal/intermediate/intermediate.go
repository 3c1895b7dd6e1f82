// Package intermediate manages the user-facing counterpart to the
// checkpoint store: JSON snapshots of stages 4-6 under
// <session_dir>/intermediates/, readable by an external CLI that wants to
// resume the pipeline at any of those stages without going through the
// checkpoint store's internal (blob-backed, opaque) format.
package intermediate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
)

// StageNumber identifies one of the three resumable intermediate stages.
type StageNumber int

const (
	StageMergedTranscript StageNumber = 4
	StageDiarization      StageNumber = 5
	StageClassification   StageNumber = 6
)

var stageNames = map[StageNumber]string{
	StageMergedTranscript: "merged_transcript",
	StageDiarization:      "diarization",
	StageClassification:   "classification",
}

// Metadata describes a saved stage snapshot.
type Metadata struct {
	SessionID   string `json:"session_id"`
	Stage       string `json:"stage"`
	StageNumber int    `json:"stage_number"`
	Timestamp   string `json:"timestamp"`
	Version     string `json:"version"`
	InputFile   string `json:"input_file,omitempty"`
	PromptLog   string `json:"prompt_log,omitempty"`
}

// StageOutput is the on-disk shape of a stage_N_*.json file.
type StageOutput struct {
	Metadata   Metadata       `json:"metadata"`
	Segments   []any          `json:"segments"`
	Statistics map[string]any `json:"statistics,omitempty"`
}

// Manager owns the intermediates directory for one session's output.
type Manager struct {
	sessionOutputDir string
	intermediatesDir string
	sessionID        string
}

// New returns a Manager rooted at sessionOutputDir/intermediates.
func New(sessionOutputDir string) *Manager {
	return &Manager{
		sessionOutputDir: sessionOutputDir,
		intermediatesDir: filepath.Join(sessionOutputDir, "intermediates"),
		sessionID:        filepath.Base(sessionOutputDir),
	}
}

// EnsureDir creates the intermediates directory if missing.
func (m *Manager) EnsureDir() error {
	if err := os.MkdirAll(m.intermediatesDir, 0o755); err != nil {
		return apperrors.New(fmt.Errorf("create intermediates dir: %w", err)).
			Component("intermediate").Category(apperrors.CategoryFileIO).Build()
	}
	return nil
}

func (m *Manager) stagePath(stage StageNumber) (string, error) {
	name, ok := stageNames[stage]
	if !ok {
		return "", apperrors.Newf("invalid intermediate stage number: %d", stage).
			Component("intermediate").Category(apperrors.CategoryValidation).Build()
	}
	return filepath.Join(m.intermediatesDir, fmt.Sprintf("stage_%d_%s.json", stage, name)), nil
}

// SaveStageOutput writes segments (already json.Marshal-able, e.g. a
// []model.TranscriptionSegment converted via toAny) for stage, along with
// optional statistics and the input file path.
func (m *Manager) SaveStageOutput(stage StageNumber, segments []any, statistics map[string]any, inputFile string) (string, error) {
	if err := m.EnsureDir(); err != nil {
		return "", err
	}
	path, err := m.stagePath(stage)
	if err != nil {
		return "", err
	}

	output := StageOutput{
		Metadata: Metadata{
			SessionID:   m.sessionID,
			Stage:       stageNames[stage],
			StageNumber: int(stage),
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Version:     "1.0",
			InputFile:   inputFile,
		},
		Segments:   segments,
		Statistics: statistics,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return "", apperrors.New(fmt.Errorf("marshal stage %d output: %w", stage, err)).
			Component("intermediate").Category(apperrors.CategoryFileIO).Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", apperrors.New(fmt.Errorf("write stage %d output: %w", stage, err)).
			Component("intermediate").Category(apperrors.CategoryFileIO).Build()
	}
	return path, nil
}

// LoadStageOutput reads back a previously saved stage snapshot, validating
// the required metadata fields are present so a hand-edited or truncated
// file fails fast with a clear error instead of propagating a zero-valued
// struct downstream.
func (m *Manager) LoadStageOutput(stage StageNumber) (StageOutput, error) {
	path, err := m.stagePath(stage)
	if err != nil {
		return StageOutput{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return StageOutput{}, apperrors.New(fmt.Errorf("stage %d output not found at %s", stage, path)).
				Component("intermediate").Category(apperrors.CategoryFileIO).Build()
		}
		return StageOutput{}, apperrors.New(fmt.Errorf("read stage %d output: %w", stage, err)).
			Component("intermediate").Category(apperrors.CategoryFileIO).Build()
	}

	var output StageOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return StageOutput{}, apperrors.New(fmt.Errorf("parse stage %d output %s: %w", stage, path, err)).
			Component("intermediate").Category(apperrors.CategoryValidation).Build()
	}
	if output.Metadata.SessionID == "" || output.Metadata.Stage == "" || output.Metadata.Timestamp == "" {
		return StageOutput{}, apperrors.Newf("invalid stage output format in %s: missing required metadata", path).
			Component("intermediate").Category(apperrors.CategoryValidation).Build()
	}
	return output, nil
}

// StageOutputExists reports whether stage's snapshot file is present.
func (m *Manager) StageOutputExists(stage StageNumber) bool {
	path, err := m.stagePath(stage)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// AuditLogPath returns the path to the classifier prompt/response audit log.
func (m *Manager) AuditLogPath() string {
	return filepath.Join(m.intermediatesDir, "stage_6_prompts.ndjson")
}

// ScenesPath returns the path to the scene-bundle aggregation file.
func (m *Manager) ScenesPath() string {
	return filepath.Join(m.intermediatesDir, "stage_6_scenes.json")
}
