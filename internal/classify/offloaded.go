package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
	"github.com/gambitnl/sessionscribe/internal/model"
)

// defaultOffloadedPromptTemplate is the prompt used when the offloaded
// backend isn't given an explicit PromptTemplate, preserving the exact
// reply format (Dutch field keys) every backend's response parser expects.
const defaultOffloadedPromptTemplate = `Context: D&D session
Characters: {char_list}
Players: {player_list}

Analyze this segment and classify as IC (in-character), OOC (out-of-character), or MIXED:

Previous segment: "{prev_text}"
Current segment: "{current_text}"
Next segment: "{next_text}"

Respond in this format:
Classificatie: IC|OOC|MIXED
Reden: <short explanation>
Vertrouwen: <0.0-1.0>
Personage: <name or N/A>`

// offloadedJob is the payload written to the pending directory.
type offloadedJob struct {
	JobID          string                        `json:"job_id"`
	Segments       []model.TranscriptionSegment  `json:"segments"`
	CharacterNames []string                      `json:"character_names"`
	PlayerNames    []string                      `json:"player_names"`
	PromptTemplate string                        `json:"prompt_template"`
}

type offloadedResult struct {
	Classifications []Result `json:"classifications"`
}

// OffloadedClassifier hands classification work to an external collaborator
// (e.g. a notebook session) via a pending/complete directory pair, matching
// the behavior of uploading a job file and polling for its paired result
// file. A fsnotify watch on the complete directory is used when available so
// polling is the fallback path rather than the only path.
type OffloadedClassifier struct {
	opts   Options
	logger *slog.Logger
}

// NewOffloadedClassifier returns a Backend driving the file-exchange mailbox.
func NewOffloadedClassifier(opts Options) *OffloadedClassifier {
	if opts.PromptTemplate == "" {
		opts.PromptTemplate = defaultOffloadedPromptTemplate
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 5
	}
	if opts.Timeout == 0 {
		opts.Timeout = 600
	}
	return &OffloadedClassifier{opts: opts, logger: slog.Default()}
}

func (c *OffloadedClassifier) Name() string { return "offloaded" }

func (c *OffloadedClassifier) pendingDir() string { return filepath.Join(c.opts.GDriveMountRoot, "classification_pending") }
func (c *OffloadedClassifier) completeDir() string { return filepath.Join(c.opts.GDriveMountRoot, "classification_complete") }

func (c *OffloadedClassifier) Preflight(ctx context.Context) []model.PreflightIssue {
	var issues []model.PreflightIssue
	if _, err := os.Stat(c.pendingDir()); err != nil {
		issues = append(issues, model.PreflightIssue{
			Component: "classifier",
			Message:   fmt.Sprintf("mailbox pending directory not found: %s", c.pendingDir()),
			Fatal:     true,
		})
	}
	if _, err := os.Stat(c.completeDir()); err != nil {
		issues = append(issues, model.PreflightIssue{
			Component: "classifier",
			Message:   fmt.Sprintf("mailbox complete directory not found: %s", c.completeDir()),
			Fatal:     true,
		})
	}
	return issues
}

func (c *OffloadedClassifier) ClassifySegments(ctx context.Context, segments []model.TranscriptionSegment, characterNames, playerNames []string) ([]Result, error) {
	jobID := fmt.Sprintf("job_%d_%s", time.Now().Unix(), uuid.NewString()[:8])

	job := offloadedJob{
		JobID:          jobID,
		Segments:       segments,
		CharacterNames: characterNames,
		PlayerNames:    playerNames,
		PromptTemplate: c.opts.PromptTemplate,
	}
	jobPath := filepath.Join(c.pendingDir(), jobID+".json")
	resultPath := filepath.Join(c.completeDir(), jobID+"_result.json")

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(jobPath, data, 0o644); err != nil {
		return nil, apperrors.New(fmt.Errorf("write classification job: %w", err)).
			Component("classifier").Category(apperrors.CategoryFileIO).Build()
	}

	c.logger.Info("uploaded classification job, awaiting result", "job_id", jobID, "timeout_s", c.opts.Timeout)

	if err := c.waitForResult(ctx, resultPath); err != nil {
		return nil, err
	}

	resultData, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, apperrors.New(fmt.Errorf("read classification result: %w", err)).
			Component("classifier").Category(apperrors.CategoryFileIO).Build()
	}
	var parsed offloadedResult
	if err := json.Unmarshal(resultData, &parsed); err != nil {
		return nil, apperrors.New(fmt.Errorf("parse classification result: %w", err)).
			Component("classifier").Category(apperrors.CategoryFileIO).Build()
	}

	_ = os.Remove(jobPath)
	_ = os.Remove(resultPath)

	return parsed.Classifications, nil
}

// waitForResult blocks until resultPath exists, Timeout elapses, or ctx is
// canceled. It prefers an fsnotify watch on the containing directory,
// falling back to polling at PollInterval if the watch can't be set up.
func (c *OffloadedClassifier) waitForResult(ctx context.Context, resultPath string) error {
	deadline := time.Now().Add(time.Duration(c.opts.Timeout) * time.Second)

	if _, err := os.Stat(resultPath); err == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return c.pollForResult(ctx, resultPath, deadline)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(resultPath)); err != nil {
		return c.pollForResult(ctx, resultPath, deadline)
	}

	ticker := time.NewTicker(time.Duration(c.opts.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(resultPath); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return apperrors.Newf("offloaded classification timed out after %ds", c.opts.Timeout).
				Component("classifier").Category(apperrors.CategoryTimeout).Build()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-watcher.Events:
			continue
		case <-ticker.C:
			continue
		}
	}
}

func (c *OffloadedClassifier) pollForResult(ctx context.Context, resultPath string, deadline time.Time) error {
	ticker := time.NewTicker(time.Duration(c.opts.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(resultPath); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return apperrors.Newf("offloaded classification timed out after %ds", c.opts.Timeout).
				Component("classifier").Category(apperrors.CategoryTimeout).Build()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			continue
		}
	}
}
