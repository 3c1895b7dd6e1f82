package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gambitnl/sessionscribe/internal/align"
	"github.com/gambitnl/sessionscribe/internal/apperrors"
	"github.com/gambitnl/sessionscribe/internal/audio"
	"github.com/gambitnl/sessionscribe/internal/classify"
	"github.com/gambitnl/sessionscribe/internal/format"
	"github.com/gambitnl/sessionscribe/internal/intermediate"
	"github.com/gambitnl/sessionscribe/internal/knowledge"
	"github.com/gambitnl/sessionscribe/internal/model"
	"github.com/gambitnl/sessionscribe/internal/snippet"
	"github.com/gambitnl/sessionscribe/internal/status"
)

// unknownSpeakerFallback is the single diarized turn assigned when
// diarization is skipped or degrades to failure: every segment aligns to
// one speaker spanning the whole recording, matching the original's
// single-speaker fallback rather than leaving segments unaligned.
const unknownSpeakerFallback = "SPEAKER_UNKNOWN"

// stage1Data is Stage AUDIO_CONVERTED's checkpointed output.
type stage1Data struct {
	WavPath  string  `json:"wav_path"`
	Duration float64 `json:"duration"`
}

// chunkMeta is a chunk's boundaries without its PCM payload, small enough to
// checkpoint inline; PCM is reconstructed from WavPath on resume.
type chunkMeta struct {
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	SampleRate int     `json:"sample_rate"`
	ChunkIndex int      `json:"chunk_index"`
}

type stage2Data struct {
	Chunks []chunkMeta `json:"chunks"`
}

type stage5Data struct {
	AlignedSegments []align.Aligned `json:"aligned_segments"`
	UniqueSpeakers  int             `json:"unique_speakers"`
}

type stage6Data struct {
	Results []classify.Result `json:"results"`
}

// runStages sequences the nine pipeline stages, short-circuiting any stage
// already marked completed in `completed` with its checkpointed output.
func (p *Processor) runStages(ctx context.Context, inputFile, outputDir string, meta map[string]string, completed completedSet, skip SkipFlags, interMgr *intermediate.Manager) (Result, error) {
	wavPath, duration, err := p.stageAudioConverted(ctx, inputFile, outputDir, meta, completed)
	if err != nil {
		return Result{}, err
	}

	chunks, err := p.stageAudioChunked(wavPath, meta, completed)
	if err != nil {
		return Result{}, err
	}

	transcriptions, err := p.stageAudioTranscribed(ctx, chunks, meta, completed)
	if err != nil {
		return Result{}, err
	}

	merged, err := p.stageTranscriptionMerged(transcriptions, meta, completed, interMgr, inputFile)
	if err != nil {
		return Result{}, err
	}

	aligned, uniqueSpeakers, err := p.stageSpeakerDiarized(ctx, wavPath, duration, merged, skip, meta, completed, interMgr, inputFile)
	if err != nil {
		return Result{}, err
	}

	classifications, err := p.stageSegmentsClassified(ctx, merged, skip, meta, completed, interMgr, inputFile)
	if err != nil {
		return Result{}, err
	}

	labeled := mergeLabeled(aligned, classifications)

	outputFiles, stats, err := p.stageOutputsGenerated(labeled, outputDir, meta, completed, uniqueSpeakers)
	if err != nil {
		return Result{}, err
	}

	segmentsResult, err := p.stageAudioSegmentsExported(ctx, wavPath, labeled, outputDir, skip, meta, completed)
	if err != nil {
		return Result{}, err
	}

	extraction, err := p.stageKnowledgeExtracted(ctx, labeled, skip, meta, completed)
	if err != nil {
		return Result{}, err
	}

	return Result{
		OutputFiles:   outputFiles,
		Statistics:    stats,
		AudioSegments: segmentsResult,
		Knowledge:     extraction,
		Success:       true,
	}, nil
}

func stageIndex(stage model.PipelineStage) int {
	for i, s := range model.Stages {
		if s == stage {
			return i + 1
		}
	}
	return 0
}

func (p *Processor) reportStage(stage model.PipelineStage, phase status.Phase, message string) {
	idx := stageIndex(stage)
	if phase == status.PhaseCompleted {
		p.mu.Lock()
		started, ok := p.stageStarted[stage]
		delete(p.stageStarted, stage)
		p.mu.Unlock()
		if ok {
			p.cfg.Status.UpdateStageWithDuration(p.cfg.Session.ID, idx, message, nil, time.Since(started))
			return
		}
	}
	if phase == status.PhaseRunning {
		p.mu.Lock()
		if _, exists := p.stageStarted[stage]; !exists {
			p.stageStarted[stage] = time.Now()
		}
		p.mu.Unlock()
	}
	p.cfg.Status.UpdateStage(p.cfg.Session.ID, idx, phase, message, nil)
}

// stageAudioConverted transcodes inputFile to the canonical 16kHz mono WAV.
func (p *Processor) stageAudioConverted(ctx context.Context, inputFile, outputDir string, meta map[string]string, completed completedSet) (string, float64, error) {
	stage := model.StageAudioConverted
	if data, ok := loadStageData[stage1Data](p, stage, completed, func(d stage1Data) bool {
		_, statErr := os.Stat(d.WavPath)
		return statErr == nil
	}); ok {
		p.logger.Info("resuming stage", "stage", stage)
		return data.WavPath, data.Duration, nil
	}

	p.reportStage(stage, status.PhaseRunning, "converting audio")
	wavPath := filepath.Join(outputDir, "audio_converted.wav")
	if err := p.cfg.Transcoder.ConvertToWAV(ctx, inputFile, wavPath); err != nil {
		p.reportStage(stage, status.PhaseFailed, err.Error())
		return "", 0, err
	}
	duration, err := p.cfg.Transcoder.Duration(ctx, wavPath)
	if err != nil {
		p.reportStage(stage, status.PhaseFailed, err.Error())
		return "", 0, err
	}

	if err := p.saveStageData(stage, stage1Data{WavPath: wavPath, Duration: duration}, completed, meta); err != nil {
		return "", 0, err
	}
	p.reportStage(stage, status.PhaseCompleted, "audio converted")
	return wavPath, duration, nil
}

// stageAudioChunked splits wavPath into overlapping chunks via the VAD-aware
// chunker, reloading PCM from wavPath (rather than checkpointing it) since
// the raw samples are already durable on disk once stage 1 completes.
func (p *Processor) stageAudioChunked(wavPath string, meta map[string]string, completed completedSet) ([]model.AudioChunk, error) {
	stage := model.StageAudioChunked
	if data, ok := loadStageData[stage2Data](p, stage, completed, func(d stage2Data) bool { return len(d.Chunks) > 0 }); ok {
		p.logger.Info("resuming stage", "stage", stage, "chunks", len(data.Chunks))
		return reloadChunks(wavPath, data.Chunks)
	}

	p.reportStage(stage, status.PhaseRunning, "chunking audio")
	samples, sampleRate, err := audio.LoadWAV(wavPath)
	if err != nil {
		p.reportStage(stage, status.PhaseFailed, err.Error())
		return nil, err
	}

	chunks, err := p.cfg.Chunker.Chunk(samples, sampleRate, func(chunk model.AudioChunk, total float64) {
		p.reportStage(stage, status.PhaseRunning, fmt.Sprintf("chunk %d/%0.0fs", chunk.ChunkIndex, total))
	})
	if err != nil {
		p.reportStage(stage, status.PhaseFailed, err.Error())
		return nil, err
	}

	metas := make([]chunkMeta, len(chunks))
	for i, c := range chunks {
		metas[i] = chunkMeta{StartTime: c.StartTime, EndTime: c.EndTime, SampleRate: c.SampleRate, ChunkIndex: c.ChunkIndex}
	}
	if err := p.saveStageData(stage, stage2Data{Chunks: metas}, completed, meta); err != nil {
		return nil, err
	}
	p.reportStage(stage, status.PhaseCompleted, fmt.Sprintf("%d chunks", len(chunks)))
	return chunks, nil
}

func reloadChunks(wavPath string, metas []chunkMeta) ([]model.AudioChunk, error) {
	samples, sampleRate, err := audio.LoadWAV(wavPath)
	if err != nil {
		return nil, err
	}
	chunks := make([]model.AudioChunk, len(metas))
	for i, m := range metas {
		startIdx := int(m.StartTime * float64(sampleRate))
		endIdx := int(m.EndTime * float64(sampleRate))
		if endIdx > len(samples) {
			endIdx = len(samples)
		}
		if startIdx > endIdx {
			startIdx = endIdx
		}
		chunks[i] = model.AudioChunk{
			PCM:        samples[startIdx:endIdx],
			StartTime:  m.StartTime,
			EndTime:    m.EndTime,
			SampleRate: m.SampleRate,
			ChunkIndex: m.ChunkIndex,
		}
	}
	return chunks, nil
}

// stageAudioTranscribed transcribes every chunk concurrently, bounded by
// Settings.TranscriptionWorkers, then restores chunk order (errgroup offers
// no ordering guarantee across goroutines).
func (p *Processor) stageAudioTranscribed(ctx context.Context, chunks []model.AudioChunk, meta map[string]string, completed completedSet) ([]model.ChunkTranscription, error) {
	stage := model.StageAudioTranscribed
	if data, ok := loadStageData[[]model.ChunkTranscription](p, stage, completed, func(d []model.ChunkTranscription) bool { return len(d) > 0 }); ok {
		p.logger.Info("resuming stage", "stage", stage, "chunks", len(data))
		return data, nil
	}

	p.reportStage(stage, status.PhaseRunning, fmt.Sprintf("transcribing %d chunks", len(chunks)))

	results := make([]model.ChunkTranscription, len(chunks))
	workers := p.cfg.Settings.TranscriptionWorkers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	done := 0
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			t, err := p.cfg.Transcription.Transcribe(gctx, chunk, p.cfg.Session.Language)
			if err != nil {
				return apperrors.New(fmt.Errorf("transcribe chunk %d: %w", chunk.ChunkIndex, err)).
					Component("pipeline").Category(apperrors.CategoryTranscode).Build()
			}
			results[i] = t
			mu.Lock()
			done++
			n := done
			mu.Unlock()
			p.reportStage(stage, status.PhaseRunning, fmt.Sprintf("transcribed %d/%d", n, len(chunks)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.reportStage(stage, status.PhaseFailed, err.Error())
		return nil, err
	}

	if err := p.saveStageBlob(stage, "transcriptions", results, completed, meta); err != nil {
		return nil, err
	}
	p.reportStage(stage, status.PhaseCompleted, "transcription complete")
	return results, nil
}

// stageTranscriptionMerged resolves chunk-overlap into one continuous
// segment stream and snapshots it to the intermediates directory so an
// external tool can resume from stage 4 without touching the checkpoint
// store's internal format.
func (p *Processor) stageTranscriptionMerged(transcriptions []model.ChunkTranscription, meta map[string]string, completed completedSet, interMgr *intermediate.Manager, inputFile string) ([]model.TranscriptionSegment, error) {
	stage := model.StageTranscriptionMerged
	if data, ok := loadStageData[[]model.TranscriptionSegment](p, stage, completed, nil); ok {
		p.logger.Info("resuming stage", "stage", stage, "segments", len(data))
		return data, nil
	}

	p.reportStage(stage, status.PhaseRunning, "merging transcription overlaps")
	merged := p.cfg.Merger.Merge(transcriptions)

	if err := p.saveStageBlob(stage, "merged", merged, completed, meta); err != nil {
		return nil, err
	}
	if _, err := interMgr.SaveStageOutput(intermediate.StageMergedTranscript, segmentsToAny(merged), nil, inputFile); err != nil {
		p.logger.Warn("failed to snapshot merged transcript intermediate", "error", err)
	}
	p.reportStage(stage, status.PhaseCompleted, fmt.Sprintf("%d segments", len(merged)))
	return merged, nil
}

// stageSpeakerDiarized aligns each transcription segment to the diarized
// speaker with the greatest time overlap. Skipping diarization, or the
// backend failing on a degradable stage, both fall back to the same single
// speaker spanning the whole recording rather than leaving segments
// unaligned.
func (p *Processor) stageSpeakerDiarized(ctx context.Context, wavPath string, duration float64, merged []model.TranscriptionSegment, skip SkipFlags, meta map[string]string, completed completedSet, interMgr *intermediate.Manager, inputFile string) ([]align.Aligned, int, error) {
	stage := model.StageSpeakerDiarized
	if data, ok := loadStageData[stage5Data](p, stage, completed, nil); ok {
		p.logger.Info("resuming stage", "stage", stage, "segments", len(data.AlignedSegments))
		return data.AlignedSegments, data.UniqueSpeakers, nil
	}

	p.reportStage(stage, status.PhaseRunning, "diarizing speakers")

	var speakers []model.SpeakerSegment
	if skip.Diarization || p.cfg.Diarization == nil {
		speakers = fallbackSpeakers(duration)
		p.reportStage(stage, status.PhaseSkipped, "diarization skipped, using single-speaker fallback")
	} else {
		var err error
		speakers, err = p.cfg.Diarization.Diarize(ctx, wavPath)
		if err != nil {
			if model.StagePolicy[stage] == model.FailureDegradable {
				p.logger.Warn("diarization failed, degrading to single-speaker fallback", "error", err)
				speakers = fallbackSpeakers(duration)
				p.reportStage(stage, status.PhaseFailed, fmt.Sprintf("degraded: %v", err))
			} else {
				p.reportStage(stage, status.PhaseFailed, err.Error())
				return nil, 0, err
			}
		}
	}

	aligned := align.Assign(merged, speakers)
	uniqueSpeakers := countUniqueSpeakers(aligned)

	data := stage5Data{AlignedSegments: aligned, UniqueSpeakers: uniqueSpeakers}
	if err := p.saveStageData(stage, data, completed, meta); err != nil {
		return nil, 0, err
	}
	if _, err := interMgr.SaveStageOutput(intermediate.StageDiarization, alignedToAny(aligned), map[string]any{"unique_speakers": uniqueSpeakers}, inputFile); err != nil {
		p.logger.Warn("failed to snapshot diarization intermediate", "error", err)
	}
	p.reportStage(stage, status.PhaseCompleted, fmt.Sprintf("%d speakers", uniqueSpeakers))
	return aligned, uniqueSpeakers, nil
}

func fallbackSpeakers(duration float64) []model.SpeakerSegment {
	return []model.SpeakerSegment{{Speaker: unknownSpeakerFallback, StartTime: 0, EndTime: duration}}
}

func countUniqueSpeakers(aligned []align.Aligned) int {
	seen := map[string]bool{}
	for _, a := range aligned {
		seen[a.Speaker] = true
	}
	return len(seen)
}

// stageSegmentsClassified assigns an IC/OOC/MIXED label to each segment.
// Skipping classification defaults every segment to IC with top confidence,
// the same "assume in-character" fallback the original applies when no
// classifier is configured.
func (p *Processor) stageSegmentsClassified(ctx context.Context, merged []model.TranscriptionSegment, skip SkipFlags, meta map[string]string, completed completedSet, interMgr *intermediate.Manager, inputFile string) ([]classify.Result, error) {
	stage := model.StageSegmentsClassified
	if data, ok := loadStageData[stage6Data](p, stage, completed, nil); ok {
		p.logger.Info("resuming stage", "stage", stage, "results", len(data.Results))
		return data.Results, nil
	}

	p.reportStage(stage, status.PhaseRunning, "classifying segments")

	var results []classify.Result
	if skip.Classification || p.cfg.Classification == nil {
		results = defaultClassifications(merged)
		p.reportStage(stage, status.PhaseSkipped, "classification skipped, defaulting to in-character")
	} else {
		var err error
		results, err = p.cfg.Classification.ClassifySegments(ctx, merged, p.cfg.Session.CharacterNames, p.cfg.Session.PlayerNames)
		if err != nil {
			if model.StagePolicy[stage] == model.FailureDegradable {
				p.logger.Warn("classification failed, degrading to default in-character labeling", "error", err)
				results = defaultClassifications(merged)
				p.reportStage(stage, status.PhaseFailed, fmt.Sprintf("degraded: %v", err))
			} else {
				p.reportStage(stage, status.PhaseFailed, err.Error())
				return nil, err
			}
		}
	}

	if err := p.saveStageData(stage, stage6Data{Results: results}, completed, meta); err != nil {
		return nil, err
	}
	if _, err := interMgr.SaveStageOutput(intermediate.StageClassification, classificationsToAny(results), nil, inputFile); err != nil {
		p.logger.Warn("failed to snapshot classification intermediate", "error", err)
	}
	p.reportStage(stage, status.PhaseCompleted, fmt.Sprintf("%d segments classified", len(results)))
	return results, nil
}

func defaultClassifications(segments []model.TranscriptionSegment) []classify.Result {
	results := make([]classify.Result, len(segments))
	for i := range segments {
		results[i] = classify.Result{
			SegmentIndex:   i,
			Classification: model.InCharacter,
			Confidence:     1.0,
			Reasoning:      "classification skipped",
		}
	}
	return results
}

// mergeLabeled combines speaker alignment and classification results into
// the LabeledSegment stream every downstream formatter consumes. Alignment
// and classification run over the same merged segment slice, so they share
// indices one-to-one.
func mergeLabeled(aligned []align.Aligned, classifications []classify.Result) []model.LabeledSegment {
	byIndex := make(map[int]classify.Result, len(classifications))
	for _, c := range classifications {
		byIndex[c.SegmentIndex] = c
	}

	labeled := make([]model.LabeledSegment, len(aligned))
	for i, a := range aligned {
		c, ok := byIndex[i]
		if !ok {
			c = classify.Result{Classification: model.InCharacter, Confidence: classify.DefaultConfidence}
		}
		labeled[i] = model.LabeledSegment{
			StartTime:      a.StartTime,
			EndTime:        a.EndTime,
			Text:           a.Text,
			Words:          a.Words,
			Speaker:        a.Speaker,
			Classification: c.Classification,
			Confidence:     c.Confidence,
			Reasoning:      c.Reasoning,
			Character:      c.Character,
		}
	}
	return labeled
}

// stageOutputsGenerated renders every transcript export format and computes
// session statistics.
func (p *Processor) stageOutputsGenerated(labeled []model.LabeledSegment, outputDir string, meta map[string]string, completed completedSet, uniqueSpeakers int) (format.OutputPaths, format.Statistics, error) {
	stage := model.StageOutputsGenerated
	p.reportStage(stage, status.PhaseRunning, "generating transcript exports")

	metadata := map[string]any{
		"session_id":      p.cfg.Session.ID,
		"campaign_id":     p.cfg.Session.CampaignID,
		"party_id":        p.cfg.Session.PartyID,
		"unique_speakers": uniqueSpeakers,
	}
	paths, err := format.SaveAllFormats(labeled, outputDir, p.cfg.Session.ID, nil, metadata)
	if err != nil {
		p.reportStage(stage, status.PhaseFailed, err.Error())
		return format.OutputPaths{}, format.Statistics{}, err
	}
	stats := format.GenerateStats(labeled)

	completed[stage] = true
	if err := p.cfg.Checkpoints.Save(stage, "", nil, meta, completed.sorted(), nil); err != nil {
		return paths, stats, err
	}
	p.reportStage(stage, status.PhaseCompleted, "transcript exports written")
	return paths, stats, nil
}

// stageAudioSegmentsExported extracts a per-segment audio clip for every
// labeled segment. This stage is optional: failure here never aborts the
// run.
func (p *Processor) stageAudioSegmentsExported(ctx context.Context, wavPath string, labeled []model.LabeledSegment, outputDir string, skip SkipFlags, meta map[string]string, completed completedSet) (snippet.Result, error) {
	stage := model.StageAudioSegmentsExported
	if skip.Snippets || p.cfg.SnippetExporter == nil {
		p.reportStage(stage, status.PhaseSkipped, "snippet export skipped")
		completed[stage] = true
		_ = p.cfg.Checkpoints.Save(stage, "", nil, meta, completed.sorted(), nil)
		return snippet.Result{}, nil
	}

	p.reportStage(stage, status.PhaseRunning, "exporting audio snippets")
	segmentsDir := filepath.Join(outputDir, "snippets")
	result, err := p.cfg.SnippetExporter.ExportSegments(ctx, wavPath, labeled, segmentsDir, p.cfg.Session.SafeID())
	if err != nil {
		p.logger.Warn("snippet export failed, continuing without audio clips", "error", err)
		p.reportStage(stage, status.PhaseFailed, err.Error())
		completed[stage] = true
		_ = p.cfg.Checkpoints.Save(stage, "", nil, meta, completed.sorted(), nil)
		return snippet.Result{}, nil
	}

	completed[stage] = true
	if err := p.cfg.Checkpoints.Save(stage, "", nil, meta, completed.sorted(), nil); err != nil {
		return result, err
	}
	p.reportStage(stage, status.PhaseCompleted, fmt.Sprintf("%d clips", len(labeled)))
	return result, nil
}

// stageKnowledgeExtracted pulls campaign entities from the in-character
// transcript and merges them into the campaign's knowledge base. Optional:
// failure never aborts the run.
func (p *Processor) stageKnowledgeExtracted(ctx context.Context, labeled []model.LabeledSegment, skip SkipFlags, meta map[string]string, completed completedSet) (knowledge.Extraction, error) {
	stage := model.StageKnowledgeExtracted
	if skip.Knowledge || p.cfg.Knowledge == nil || p.cfg.Session.CampaignID == "" {
		p.reportStage(stage, status.PhaseSkipped, "knowledge extraction skipped")
		completed[stage] = true
		_ = p.cfg.Checkpoints.Save(stage, "", nil, meta, completed.sorted(), nil)
		return knowledge.Extraction{}, nil
	}

	p.reportStage(stage, status.PhaseRunning, "extracting campaign knowledge")
	icText := icOnlyText(labeled)
	extraction, err := p.cfg.Knowledge.Extract(ctx, icText, p.cfg.Session.CharacterNames, p.cfg.Session.PlayerNames)
	if err != nil {
		p.logger.Warn("knowledge extraction failed, continuing without it", "error", err)
		p.reportStage(stage, status.PhaseFailed, err.Error())
		completed[stage] = true
		_ = p.cfg.Checkpoints.Save(stage, "", nil, meta, completed.sorted(), nil)
		return knowledge.Extraction{}, nil
	}

	if p.cfg.KnowledgeStore != nil {
		if _, err := p.cfg.KnowledgeStore.MergeInto(p.cfg.Session.CampaignID, extraction); err != nil {
			p.logger.Warn("failed to merge extraction into knowledge base", "error", err)
		} else if path, err := p.cfg.KnowledgeStore.ExportYAML(p.cfg.Session.CampaignID); err != nil {
			p.logger.Warn("failed to export knowledge base as yaml", "error", err)
		} else {
			p.logger.Debug("exported knowledge base", "path", path)
		}
	}

	completed[stage] = true
	if err := p.cfg.Checkpoints.Save(stage, "", nil, meta, completed.sorted(), nil); err != nil {
		return extraction, err
	}
	p.reportStage(stage, status.PhaseCompleted, "knowledge extracted")
	return extraction, nil
}

// icOnlyText joins every IC or MIXED segment's text, in time order, as the
// input to knowledge extraction — OOC banter carries no campaign facts.
func icOnlyText(labeled []model.LabeledSegment) string {
	ordered := make([]model.LabeledSegment, len(labeled))
	copy(ordered, labeled)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].StartTime < ordered[j].StartTime })

	var parts []string
	for _, seg := range ordered {
		if seg.Classification == model.OutOfCharacter {
			continue
		}
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}

func segmentsToAny(segments []model.TranscriptionSegment) []any {
	out := make([]any, len(segments))
	for i, s := range segments {
		out[i] = s
	}
	return out
}

func alignedToAny(aligned []align.Aligned) []any {
	out := make([]any, len(aligned))
	for i, a := range aligned {
		out[i] = a
	}
	return out
}

func classificationsToAny(results []classify.Result) []any {
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = r
	}
	return out
}
