// Package snippet exports per-segment audio clips aligned with labeled
// transcript segments, maintaining an incremental JSON manifest so a run
// that crashes partway through still leaves a readable index of whatever
// clips finished.
package snippet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
	"github.com/gambitnl/sessionscribe/internal/model"
)

const manifestFilename = "manifest.json"

// extractTimeout bounds a single ffmpeg segment extraction; a stuck ffmpeg
// process must not be able to hang an entire export run.
const extractTimeout = 30 * time.Second

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Options configures an Exporter.
type Options struct {
	FFmpegPath                string
	CleanStaleClips           bool
	PlaceholderMessage        string
	UseStreamingExport        bool
	Logger                    *slog.Logger
}

// Exporter extracts per-segment WAV clips via ffmpeg streaming extraction
// (seek + duration, no full-file decode) and tracks them in a manifest.json
// alongside the clips, guarded by mu since clip extraction and manifest
// updates both happen per-segment as a pipeline stage progresses.
type Exporter struct {
	opts   Options
	logger *slog.Logger
	mu     sync.Mutex
}

// NewExporter builds an Exporter from opts, defaulting FFmpegPath to "ffmpeg".
func NewExporter(opts Options) *Exporter {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.PlaceholderMessage == "" {
		opts.PlaceholderMessage = "No audio snippets were generated for this session."
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{opts: opts, logger: logger}
}

// clearSessionDirectory removes stale clips, placeholder artifacts, and any
// prior manifest from sessionDir, returning the number of WAV clips removed.
func (e *Exporter) clearSessionDirectory(sessionDir string) (int, error) {
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, apperrors.New(fmt.Errorf("read session dir: %w", err)).
			Component("snippet").Category(apperrors.CategoryFileIO).Build()
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wav") {
			continue
		}
		if err := os.Remove(filepath.Join(sessionDir, entry.Name())); err != nil {
			e.logger.Warn("failed to remove stale clip", "file", entry.Name(), "error", err)
			continue
		}
		removed++
	}

	for _, artifact := range []string{"keep.txt", "placeholder.txt"} {
		path := filepath.Join(sessionDir, artifact)
		if _, err := os.Stat(path); err == nil {
			if err := os.Remove(path); err != nil {
				e.logger.Warn("failed to remove placeholder artifact", "file", artifact, "error", err)
			}
		}
	}

	manifestPath := filepath.Join(sessionDir, manifestFilename)
	if _, err := os.Stat(manifestPath); err == nil {
		if err := os.Remove(manifestPath); err != nil {
			e.logger.Warn("failed to remove stale manifest", "error", err)
		}
	}

	if removed > 0 {
		e.logger.Info("cleared stale clips", "count", removed, "dir", sessionDir)
	}
	return removed, nil
}

// InitializeManifest clears any prior export artifacts (if configured to)
// and writes a fresh in-progress manifest, returning its path.
func (e *Exporter) InitializeManifest(sessionDir string) (string, error) {
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return "", apperrors.New(fmt.Errorf("create session dir: %w", err)).
			Component("snippet").Category(apperrors.CategoryFileIO).Build()
	}
	manifestPath := filepath.Join(sessionDir, manifestFilename)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.opts.CleanStaleClips {
		if _, err := e.clearSessionDirectory(sessionDir); err != nil {
			return "", err
		}
	}

	manifest := model.Manifest{
		SessionID:  filepath.Base(sessionDir),
		Status:     model.ManifestInProgress,
		TotalClips: 0,
		Clips:      []model.SnippetRecord{},
	}
	if err := writeManifest(manifestPath, manifest); err != nil {
		return "", err
	}
	return manifestPath, nil
}

// extractSegmentFFmpeg extracts [start,end) from audioPath into outputPath
// using ffmpeg's seek+duration flags, avoiding a full in-memory decode.
func (e *Exporter) extractSegmentFFmpeg(ctx context.Context, audioPath string, start, end float64, outputPath string) error {
	duration := end - start
	if duration < 0.01 {
		duration = 0.01
	}

	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	return runFFmpegExtract(ctx, e.opts.FFmpegPath, audioPath, start, duration, outputPath)
}

func clipFilename(index int, speaker string) string {
	if speaker == "" {
		speaker = "UNKNOWN"
	}
	safe := strings.Trim(unsafeFilenameChars.ReplaceAllString(speaker, "_"), "_")
	if safe == "" {
		safe = "UNKNOWN"
	}
	return fmt.Sprintf("segment_%04d_%s.wav", index, safe)
}

// ExportIncremental extracts one segment's clip and appends it to the
// manifest at manifestPath, taking mu for the read-modify-write so
// concurrent callers (a worker pool exporting clips in parallel) don't race
// on the manifest file.
func (e *Exporter) ExportIncremental(ctx context.Context, audioPath string, seg model.LabeledSegment, index int, sessionDir, manifestPath string) error {
	start := seg.StartTime
	if start < 0 {
		start = 0
	}
	end := seg.EndTime
	if end < start {
		end = start
	}
	if end-start < 0.01 {
		end = start + 0.01
	}

	speaker := seg.Speaker
	if speaker == "" {
		speaker = "UNKNOWN"
	}
	clipName := clipFilename(index, speaker)
	clipPath := filepath.Join(sessionDir, clipName)

	if e.opts.UseStreamingExport {
		if err := e.extractSegmentFFmpeg(ctx, audioPath, start, end, clipPath); err != nil {
			return err
		}
	} else {
		if err := extractSegmentFullDecode(audioPath, start, end, clipPath); err != nil {
			return err
		}
	}

	var class *model.Classification
	if seg.Classification != "" {
		c := seg.Classification
		class = &c
	}
	record := model.SnippetRecord{
		SegmentIndex:   index,
		ClipFile:       clipName,
		Speaker:        speaker,
		StartTime:      start,
		EndTime:        end,
		Status:         "ready",
		Text:           seg.Text,
		Classification: class,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	manifest, err := readManifest(manifestPath)
	if err != nil {
		return err
	}
	manifest.Clips = append(manifest.Clips, record)
	manifest.TotalClips = len(manifest.Clips)
	return writeManifest(manifestPath, manifest)
}

// Result is the outcome of an ExportSegments call.
type Result struct {
	SegmentsDir string
	ManifestPath string
}

// ExportSegments exports every segment's clip into baseOutputDir/sessionID,
// initializing and finalizing the manifest around the per-segment loop. An
// empty segments slice still clears stale clips (if configured) and writes
// a "no_snippets" placeholder manifest when anything was actually removed,
// matching the no-op-vs-placeholder distinction the source pipeline draws:
// a session that never had clips gets no manifest at all, one that DID and
// was re-run with zero segments gets an explicit placeholder explaining why
// its clips disappeared.
func (e *Exporter) ExportSegments(ctx context.Context, audioPath string, segments []model.LabeledSegment, baseOutputDir, sessionID string) (Result, error) {
	sessionDir := filepath.Join(baseOutputDir, sessionID)

	if len(segments) == 0 {
		return e.exportEmpty(sessionDir)
	}

	manifestPath, err := e.InitializeManifest(sessionDir)
	if err != nil {
		return Result{}, err
	}

	e.logger.Info("exporting audio snippets", "count", len(segments), "dir", sessionDir, "audio", audioPath)

	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return Result{SegmentsDir: sessionDir, ManifestPath: manifestPath}, err
		}
		if err := e.ExportIncremental(ctx, audioPath, seg, i+1, sessionDir, manifestPath); err != nil {
			return Result{SegmentsDir: sessionDir, ManifestPath: manifestPath}, err
		}
	}

	e.mu.Lock()
	manifest, err := readManifest(manifestPath)
	if err != nil {
		e.mu.Unlock()
		return Result{}, err
	}
	manifest.Status = model.ManifestComplete
	err = writeManifest(manifestPath, manifest)
	e.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	e.logger.Info("snippet export complete", "count", len(segments), "manifest", manifestPath)
	return Result{SegmentsDir: sessionDir, ManifestPath: manifestPath}, nil
}

func (e *Exporter) exportEmpty(sessionDir string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cleanupCount := 0
	if e.opts.CleanStaleClips {
		n, err := e.clearSessionDirectory(sessionDir)
		if err != nil {
			return Result{}, err
		}
		cleanupCount = n
	}

	if cleanupCount == 0 {
		e.logger.Warn("no transcription segments provided; no new snippet manifest created")
		if _, err := os.Stat(sessionDir); err == nil {
			return Result{SegmentsDir: sessionDir}, nil
		}
		return Result{}, nil
	}

	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return Result{}, apperrors.New(fmt.Errorf("create session dir: %w", err)).
			Component("snippet").Category(apperrors.CategoryFileIO).Build()
	}
	manifestPath := filepath.Join(sessionDir, manifestFilename)
	manifest := model.Manifest{
		SessionID:  filepath.Base(sessionDir),
		Status:     model.ManifestNoSnippets,
		TotalClips: 0,
		Clips:      []model.SnippetRecord{},
		Placeholder: &model.ManifestPlaceholder{
			Message:      e.opts.PlaceholderMessage,
			Reason:       "no_segments",
			RemovedClips: cleanupCount,
		},
	}
	if err := writeManifest(manifestPath, manifest); err != nil {
		return Result{}, err
	}
	e.logger.Info("no segments provided; removed stale clips and wrote placeholder manifest",
		"removed", cleanupCount, "manifest", manifestPath)
	return Result{SegmentsDir: sessionDir, ManifestPath: manifestPath}, nil
}

func readManifest(path string) (model.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Manifest{}, apperrors.New(fmt.Errorf("read manifest: %w", err)).
			Component("snippet").Category(apperrors.CategoryFileIO).Build()
	}
	var manifest model.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return model.Manifest{}, apperrors.New(fmt.Errorf("parse manifest: %w", err)).
			Component("snippet").Category(apperrors.CategoryFileIO).Build()
	}
	return manifest, nil
}

func writeManifest(path string, manifest model.Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return apperrors.New(fmt.Errorf("marshal manifest: %w", err)).
			Component("snippet").Category(apperrors.CategoryFileIO).Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.New(fmt.Errorf("write manifest: %w", err)).
			Component("snippet").Category(apperrors.CategoryFileIO).Build()
	}
	return nil
}
