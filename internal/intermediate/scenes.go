package intermediate

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
)

// ConfidenceSpan is the min/max classifier confidence observed across a
// scene's constituent segments.
type ConfidenceSpan struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Scene is a higher-level aggregation of contiguous segments sharing a
// dominant classification/speaker context, bundled for a reader who wants
// "what happened" rather than a line-by-line transcript.
type Scene struct {
	SceneIndex     int             `json:"scene_index"`
	StartTime      float64         `json:"start_time"`
	EndTime        float64         `json:"end_time"`
	DominantType   string          `json:"dominant_type"`
	SpeakerList    []string        `json:"speaker_list"`
	Summary        string          `json:"summary,omitempty"`
	ConfidenceSpan *ConfidenceSpan `json:"confidence_span,omitempty"`
}

type scenesMetadata struct {
	SessionID   string `json:"session_id"`
	GeneratedAt string `json:"generated_at"`
	TotalScenes int    `json:"total_scenes"`
}

type scenesFile struct {
	Metadata   scenesMetadata `json:"metadata"`
	Scenes     []Scene        `json:"scenes"`
	Statistics map[string]any `json:"statistics,omitempty"`
}

// SaveSceneBundles writes scenes to stage_6_scenes.json.
func (m *Manager) SaveSceneBundles(scenes []Scene, statistics map[string]any) (string, error) {
	if err := m.EnsureDir(); err != nil {
		return "", err
	}
	data := scenesFile{
		Metadata: scenesMetadata{
			SessionID:   m.sessionID,
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			TotalScenes: len(scenes),
		},
		Scenes:     scenes,
		Statistics: statistics,
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", apperrors.New(fmt.Errorf("marshal scene bundles: %w", err)).
			Component("intermediate").Category(apperrors.CategoryFileIO).Build()
	}
	path := m.ScenesPath()
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", apperrors.New(fmt.Errorf("write scene bundles: %w", err)).
			Component("intermediate").Category(apperrors.CategoryFileIO).Build()
	}
	return path, nil
}

// LoadSceneBundles reads back stage_6_scenes.json.
func (m *Manager) LoadSceneBundles() ([]Scene, map[string]any, error) {
	path := m.ScenesPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperrors.New(fmt.Errorf("scene bundles file not found: %s", path)).
				Component("intermediate").Category(apperrors.CategoryFileIO).Build()
		}
		return nil, nil, apperrors.New(fmt.Errorf("read scene bundles: %w", err)).
			Component("intermediate").Category(apperrors.CategoryFileIO).Build()
	}
	var parsed struct {
		Metadata map[string]any `json:"metadata"`
		Scenes   []Scene        `json:"scenes"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, nil, apperrors.New(fmt.Errorf("parse scene bundles: %w", err)).
			Component("intermediate").Category(apperrors.CategoryValidation).Build()
	}
	return parsed.Scenes, parsed.Metadata, nil
}
