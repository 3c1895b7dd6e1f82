// Package pipeline orchestrates the nine resumable stages that turn a raw
// session recording into a speaker-attributed, role-labeled transcript plus
// its derived artifacts. Each stage is checkpointed so a run interrupted
// partway through resumes from the last completed stage instead of
// reprocessing everything.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gambitnl/sessionscribe/internal/align"
	"github.com/gambitnl/sessionscribe/internal/apperrors"
	"github.com/gambitnl/sessionscribe/internal/audio"
	"github.com/gambitnl/sessionscribe/internal/checkpoint"
	"github.com/gambitnl/sessionscribe/internal/classify"
	"github.com/gambitnl/sessionscribe/internal/config"
	"github.com/gambitnl/sessionscribe/internal/diarization"
	"github.com/gambitnl/sessionscribe/internal/format"
	"github.com/gambitnl/sessionscribe/internal/intermediate"
	"github.com/gambitnl/sessionscribe/internal/knowledge"
	"github.com/gambitnl/sessionscribe/internal/merger"
	"github.com/gambitnl/sessionscribe/internal/model"
	"github.com/gambitnl/sessionscribe/internal/session"
	"github.com/gambitnl/sessionscribe/internal/snippet"
	"github.com/gambitnl/sessionscribe/internal/status"
	"github.com/gambitnl/sessionscribe/internal/transcription"
)

// SkipFlags short-circuits a degradable/optional stage into its defaulted
// output instead of running the real backend.
type SkipFlags struct {
	Diarization    bool
	Classification bool
	Snippets       bool
	Knowledge      bool
}

// Config wires every backend and ambient dependency a Processor needs. The
// orchestrator itself holds no business logic beyond stage sequencing and
// checkpoint bookkeeping — every actual capability is injected so it can be
// swapped (a fake Pipeline in tests, a different backend in production)
// without touching Run.
type Config struct {
	Session  *session.Session
	Settings *config.Settings
	Logger   *slog.Logger

	Transcoder     *audio.Transcoder
	Chunker        *audio.Chunker
	Merger         *merger.Merger
	Transcription  transcription.Backend
	Diarization    diarization.Backend
	Classification classify.Backend
	Knowledge      knowledge.Backend // nil disables real extraction; skip flag still applies first
	KnowledgeStore *knowledge.Store
	SnippetExporter *snippet.Exporter
	Checkpoints    *checkpoint.Manager
	Status         *status.Tracker
}

// Processor runs one session's recording through the nine pipeline stages.
type Processor struct {
	cfg    Config
	logger *slog.Logger

	mu           sync.Mutex
	stageStarted map[model.PipelineStage]time.Time
}

// New validates cfg and returns a Processor.
func New(cfg Config) (*Processor, error) {
	if cfg.Session == nil || cfg.Settings == nil {
		return nil, apperrors.Newf("pipeline: Session and Settings are required").
			Component("pipeline").Category(apperrors.CategoryValidation).Build()
	}
	if cfg.Checkpoints == nil {
		return nil, apperrors.Newf("pipeline: Checkpoints manager is required").
			Component("pipeline").Category(apperrors.CategoryValidation).Build()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", cfg.Session.ID)
	if cfg.Status == nil {
		cfg.Status = status.New()
	}
	return &Processor{cfg: cfg, logger: logger, stageStarted: make(map[model.PipelineStage]time.Time)}, nil
}

// Result is the final outcome of a Run.
type Result struct {
	OutputFiles    format.OutputPaths
	Statistics     format.Statistics
	AudioSegments  snippet.Result
	Knowledge      knowledge.Extraction
	Success        bool
}

// completedSet tracks which stages have already produced usable output in
// this Run, letting each stage's resume check be a simple map lookup.
type completedSet map[model.PipelineStage]bool

func (c completedSet) sorted() []model.PipelineStage {
	out := make([]model.PipelineStage, 0, len(c))
	for _, s := range model.Stages {
		if c[s] {
			out = append(out, s)
		}
	}
	return out
}

// Run processes inputFile through all nine stages, honoring skip and resume
// settings from cfg.Session/cfg.Settings.
func (p *Processor) Run(ctx context.Context, inputFile string) (Result, error) {
	start := time.Now()
	skip := SkipFlags{
		Diarization:    p.cfg.Settings.SkipDiarization,
		Classification: p.cfg.Settings.SkipClassification,
		Snippets:       p.cfg.Settings.SkipSnippetExport,
		Knowledge:      p.cfg.Settings.SkipKnowledgeExtraction,
	}

	completed := completedSet{}
	var resumeRecord *model.CheckpointRecord
	if p.cfg.Session.Resume {
		latest, err := p.cfg.Checkpoints.Latest()
		if err != nil {
			p.logger.Warn("failed to load latest checkpoint, starting fresh", "error", err)
		} else if latest != nil {
			resumeRecord = latest
			for _, s := range latest.CompletedStages {
				completed[s] = true
			}
			p.logger.Info("resuming from checkpoint", "stage", latest.Stage, "saved_at", latest.Timestamp)
		}
	}

	outputDir := session.OutputDir(p.cfg.Settings.OutputDir, time.Now(), p.cfg.Session.ID)
	if resumeRecord != nil && resumeRecord.Metadata["session_output_dir"] != "" {
		outputDir = resumeRecord.Metadata["session_output_dir"]
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{}, apperrors.New(fmt.Errorf("create session output dir: %w", err)).
			Component("pipeline").Category(apperrors.CategoryFileIO).Build()
	}
	meta := map[string]string{
		"input_file":        inputFile,
		"session_output_dir": outputDir,
		"base_output_dir":   p.cfg.Settings.OutputDir,
	}
	interMgr := intermediate.New(outputDir)

	if issues := p.Preflight(ctx); HasFatalIssues(issues) {
		err := apperrors.Newf("preflight check failed: %d fatal issue(s)", len(issues)).
			Component("pipeline").Category(apperrors.CategoryValidation).Build()
		p.cfg.Status.FailSession(p.cfg.Session.ID, err.Error())
		for _, issue := range issues {
			if issue.Fatal {
				p.logger.Error("fatal preflight issue", "backend", issue.Backend, "component", issue.Component, "message", issue.Message)
			}
		}
		return Result{}, err
	}

	p.cfg.Status.StartSession(p.cfg.Session.ID, map[string]any{
		"input_file":            inputFile,
		"skip_diarization":      skip.Diarization,
		"skip_classification":   skip.Classification,
		"skip_snippets":         skip.Snippets,
		"skip_knowledge":        skip.Knowledge,
		"num_speakers":          p.cfg.Session.NumSpeakers,
		"campaign_id":           p.cfg.Session.CampaignID,
		"party_id":              p.cfg.Session.PartyID,
	})

	result, err := p.runStages(ctx, inputFile, outputDir, meta, completed, skip, interMgr)
	duration := time.Since(start)
	if err != nil {
		p.cfg.Status.FailSession(p.cfg.Session.ID, err.Error())
		p.logger.Error("session failed", "error", err, "duration", duration)
		return Result{}, err
	}

	p.cfg.Status.CompleteSession(p.cfg.Session.ID)
	p.logger.Info("session complete", "duration", duration,
		"total_segments", result.Statistics.TotalSegments,
		"ic_segments", result.Statistics.ICSegments,
		"ooc_segments", result.Statistics.OOCSegments)

	if p.cfg.Session.Resume {
		if err := p.cfg.Checkpoints.Clear(); err != nil {
			p.logger.Warn("failed to clear checkpoints after successful run", "error", err)
		}
	}
	return result, nil
}

// saveStageData writes data as the small JSON sidecar for stage (the
// default path — used for every stage except the two whose payload is
// large enough to warrant gzip compression via saveStageBlob).
func (p *Processor) saveStageData(stage model.PipelineStage, data any, completed completedSet, meta map[string]string) error {
	path, err := p.cfg.Checkpoints.SaveStageData(stage, data)
	if err != nil {
		return err
	}
	completed[stage] = true
	return p.cfg.Checkpoints.Save(stage, path, nil, meta, completed.sorted(), nil)
}

// saveStageBlob gzip-compresses data's JSON encoding and records it as a
// checkpoint blob, for stages 3 and 4 whose per-chunk/per-segment payload
// can run into megabytes for a multi-hour session.
func (p *Processor) saveStageBlob(stage model.PipelineStage, name string, data any, completed completedSet, meta map[string]string) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return apperrors.New(fmt.Errorf("marshal %s for checkpoint blob: %w", name, err)).
			Component("pipeline").Category(apperrors.CategoryCheckpointCorruption).Build()
	}
	blobPath, err := p.cfg.Checkpoints.WriteBlob(stage, name, encoded)
	if err != nil {
		return err
	}
	completed[stage] = true
	return p.cfg.Checkpoints.Save(stage, "", []string{blobPath}, meta, completed.sorted(), nil)
}

// loadStageData attempts to resume stage from its checkpoint, returning
// (zero, false) if resume is disabled, nothing was saved, or validate
// rejects what was loaded (e.g. a referenced file no longer exists). On
// rejection it clears stage from completed so the caller re-runs it.
func loadStageData[T any](p *Processor, stage model.PipelineStage, completed completedSet, validate func(T) bool) (T, bool) {
	var zero T
	if !p.cfg.Session.Resume || !completed[stage] {
		return zero, false
	}
	record, err := p.cfg.Checkpoints.Load(stage)
	if err != nil || record == nil {
		delete(completed, stage)
		return zero, false
	}

	var data T
	var ok bool
	if len(record.BlobPaths) > 0 {
		raw, err := checkpoint.ReadBlob(record.BlobPaths[0])
		if err != nil {
			p.logger.Warn("checkpoint blob unreadable, re-running stage", "stage", stage, "error", err)
			delete(completed, stage)
			return zero, false
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			delete(completed, stage)
			return zero, false
		}
		ok = true
	} else {
		ok, err = checkpoint.LoadStageData(record.DataPath, &data)
		if err != nil || !ok {
			delete(completed, stage)
			return zero, false
		}
	}

	if validate != nil && !validate(data) {
		delete(completed, stage)
		return zero, false
	}
	return data, true
}
