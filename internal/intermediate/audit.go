package intermediate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
)

// AuditEntry is one classifier prompt/response record. It always carries
// sha256 hashes of the prompt and response; truncated previews and the raw
// structured data are added only when Append is called with redact false.
type AuditEntry struct {
	SegmentIndex    int            `json:"segment_index"`
	Timestamp       string         `json:"timestamp"`
	PromptHash      string         `json:"prompt_hash"`
	ResponseHash    string         `json:"response_hash"`
	Model           string         `json:"model"`
	Options         map[string]any `json:"options,omitempty"`
	RetryStrategy   string         `json:"retry_strategy,omitempty"`
	PromptPreview   string         `json:"prompt_preview,omitempty"`
	ResponsePreview string         `json:"response_preview,omitempty"`
	PromptData      map[string]any `json:"prompt_data,omitempty"`
	ResponseData    map[string]any `json:"response_data,omitempty"`
}

const previewLength = 256

// AuditLogger appends classification audit entries to stage_6_prompts.ndjson,
// one JSON object per line, serializing writes with mu so concurrent
// classifier workers don't interleave partial lines.
type AuditLogger struct {
	mgr *Manager
	mu  sync.Mutex
}

// NewAuditLogger returns an AuditLogger writing into mgr's intermediates dir.
func NewAuditLogger(mgr *Manager) *AuditLogger {
	return &AuditLogger{mgr: mgr}
}

// Append writes one audit entry. When redact is true, prompt/response text
// is dropped entirely (only hashes, model info, and prompt structure
// survive); otherwise truncated previews and the raw structured data are
// kept for debugging.
func (a *AuditLogger) Append(segmentIndex int, promptData, responseData map[string]any, model string, options map[string]any, retryStrategy string, redact bool) error {
	if err := a.mgr.EnsureDir(); err != nil {
		return err
	}

	promptText := fmt.Sprintf("%v", promptData)
	responseText := fmt.Sprintf("%v", responseData["raw_response"])

	promptHash := sha256.Sum256([]byte(promptText))
	responseHash := sha256.Sum256([]byte(responseText))

	entry := AuditEntry{
		SegmentIndex:  segmentIndex,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		PromptHash:    hex.EncodeToString(promptHash[:]),
		ResponseHash:  hex.EncodeToString(responseHash[:]),
		Model:         model,
		Options:       options,
		RetryStrategy: retryStrategy,
	}

	if !redact {
		entry.PromptPreview = truncate(promptText, previewLength)
		entry.ResponsePreview = truncate(responseText, previewLength)
		entry.PromptData = promptData
		entry.ResponseData = responseData
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return apperrors.New(fmt.Errorf("marshal audit entry: %w", err)).
			Component("intermediate").Category(apperrors.CategoryFileIO).Build()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.mgr.AuditLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return apperrors.New(fmt.Errorf("open audit log: %w", err)).
			Component("intermediate").Category(apperrors.CategoryFileIO).Build()
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return apperrors.New(fmt.Errorf("append audit log: %w", err)).
			Component("intermediate").Category(apperrors.CategoryFileIO).Build()
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// UpdateClassificationMetadata merges metadata into the already-saved
// stage_6_classification.json's metadata block, adding a prompt_log
// reference when an audit log exists alongside it.
func (m *Manager) UpdateClassificationMetadata(metadata map[string]any) error {
	path, err := m.stagePath(StageClassification)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.New(fmt.Errorf("cannot update metadata: %s does not exist", path)).
				Component("intermediate").Category(apperrors.CategoryState).Build()
		}
		return apperrors.New(fmt.Errorf("read stage 6 output: %w", err)).
			Component("intermediate").Category(apperrors.CategoryFileIO).Build()
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return apperrors.New(fmt.Errorf("parse stage 6 output: %w", err)).
			Component("intermediate").Category(apperrors.CategoryValidation).Build()
	}

	existing, _ := raw["metadata"].(map[string]any)
	if existing == nil {
		existing = map[string]any{}
	}
	for k, v := range metadata {
		existing[k] = v
	}
	if _, err := os.Stat(m.AuditLogPath()); err == nil {
		if rel, err := filepath.Rel(m.sessionOutputDir, m.AuditLogPath()); err == nil {
			existing["prompt_log"] = rel
		}
	}
	raw["metadata"] = existing

	out, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return apperrors.New(fmt.Errorf("marshal updated stage 6 output: %w", err)).
			Component("intermediate").Category(apperrors.CategoryFileIO).Build()
	}
	return os.WriteFile(path, out, 0o644)
}
