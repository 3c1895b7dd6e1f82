// Package model holds the plain data types shared across pipeline stages:
// chunks, transcription segments, speaker segments, classifications,
// checkpoint records, and the snippet manifest.
package model

import "time"

// Classification is the IC/OOC/MIXED label a classifier assigns to a segment.
type Classification string

const (
	InCharacter    Classification = "IC"
	OutOfCharacter Classification = "OOC"
	Mixed          Classification = "MIXED"
)

// TranscriptFilter selects which classifications an export includes.
type TranscriptFilter string

const (
	FilterAll         TranscriptFilter = "all"
	FilterICOnly      TranscriptFilter = "ic_only"
	FilterOOCOnly     TranscriptFilter = "ooc_only"
	FilterMixedOnly   TranscriptFilter = "mixed_only"
)

// Word is a single word-level timing produced by the transcription backend.
type Word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// AudioChunk is a slice of the session recording handed to transcription.
// PCM holds interleaved float32 mono samples at SampleRate; it is left nil
// when a chunk is reconstructed from a checkpoint without re-decoding audio.
type AudioChunk struct {
	PCM        []float32 `json:"-"`
	StartTime  float64   `json:"start_time"`
	EndTime    float64   `json:"end_time"`
	SampleRate int       `json:"sample_rate"`
	ChunkIndex int       `json:"chunk_index"`
}

// Duration returns the chunk's length in seconds.
func (c AudioChunk) Duration() float64 { return c.EndTime - c.StartTime }

// TranscriptionSegment is one utterance produced by the transcription
// backend for a single chunk. The merger compares its times directly with
// the session-relative chunk boundaries and does not shift them.
type TranscriptionSegment struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
	Words     []Word  `json:"words,omitempty"`
}

// ChunkTranscription is the ordered set of segments transcribed from one
// AudioChunk, carrying enough identity for the merger to resolve overlaps.
type ChunkTranscription struct {
	ChunkIndex int                    `json:"chunk_index"`
	StartTime  float64                `json:"start_time"`
	EndTime    float64                `json:"end_time"`
	Segments   []TranscriptionSegment `json:"segments"`
}

// SpeakerSegment is one diarized speaker turn.
type SpeakerSegment struct {
	Speaker   string  `json:"speaker"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// LabeledSegment is a transcription segment after speaker alignment and
// IC/OOC/MIXED classification have both been applied — the unit every
// downstream formatter, snippet exporter, and knowledge extractor consumes.
type LabeledSegment struct {
	StartTime      float64        `json:"start_time"`
	EndTime        float64        `json:"end_time"`
	Text           string         `json:"text"`
	Words          []Word         `json:"words,omitempty"`
	Speaker        string         `json:"speaker"`
	Classification Classification `json:"classification"`
	Confidence     float64        `json:"classification_confidence"`
	Reasoning      string         `json:"classification_reasoning,omitempty"`
	Character      string         `json:"character,omitempty"`
}

// Duration returns the segment length in seconds.
func (s LabeledSegment) Duration() float64 { return s.EndTime - s.StartTime }

// PipelineStage names one of the nine resumable stages, in execution order.
type PipelineStage string

const (
	StageAudioConverted       PipelineStage = "AUDIO_CONVERTED"
	StageAudioChunked         PipelineStage = "AUDIO_CHUNKED"
	StageAudioTranscribed     PipelineStage = "AUDIO_TRANSCRIBED"
	StageTranscriptionMerged  PipelineStage = "TRANSCRIPTION_MERGED"
	StageSpeakerDiarized      PipelineStage = "SPEAKER_DIARIZED"
	StageSegmentsClassified   PipelineStage = "SEGMENTS_CLASSIFIED"
	StageOutputsGenerated     PipelineStage = "OUTPUTS_GENERATED"
	StageAudioSegmentsExported PipelineStage = "AUDIO_SEGMENTS_EXPORTED"
	StageKnowledgeExtracted   PipelineStage = "KNOWLEDGE_EXTRACTED"
)

// Stages lists every pipeline stage in execution order.
var Stages = []PipelineStage{
	StageAudioConverted,
	StageAudioChunked,
	StageAudioTranscribed,
	StageTranscriptionMerged,
	StageSpeakerDiarized,
	StageSegmentsClassified,
	StageOutputsGenerated,
	StageAudioSegmentsExported,
	StageKnowledgeExtracted,
}

// FailurePolicy classifies how the orchestrator reacts to a stage failing.
type FailurePolicy string

const (
	// FailureCritical aborts the run; nothing downstream can proceed.
	FailureCritical FailurePolicy = "critical"
	// FailureDegradable lets the run continue with reduced fidelity.
	FailureDegradable FailurePolicy = "degradable"
	// FailureOptional is skipped on failure with no effect on other stages.
	FailureOptional FailurePolicy = "optional"
)

// StagePolicy is the failure policy for each stage.
var StagePolicy = map[PipelineStage]FailurePolicy{
	StageAudioConverted:        FailureCritical,
	StageAudioChunked:          FailureCritical,
	StageAudioTranscribed:      FailureCritical,
	StageTranscriptionMerged:   FailureCritical,
	StageSpeakerDiarized:       FailureDegradable,
	StageSegmentsClassified:    FailureDegradable,
	StageOutputsGenerated:      FailureCritical,
	StageAudioSegmentsExported: FailureOptional,
	StageKnowledgeExtracted:    FailureOptional,
}

// CheckpointRecord is the persisted result of one completed stage.
type CheckpointRecord struct {
	SessionID       string            `json:"session_id"`
	Stage           PipelineStage     `json:"stage"`
	Timestamp       time.Time         `json:"timestamp"`
	Success         bool              `json:"success"`
	DataPath        string            `json:"data_path,omitempty"`
	BlobPaths       []string          `json:"blob_paths,omitempty"`
	Error           string            `json:"error,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CompletedStages []PipelineStage   `json:"completed_stages,omitempty"`
}

// ManifestStatus tracks the lifecycle of a streaming snippet export run.
type ManifestStatus string

const (
	ManifestInProgress ManifestStatus = "in_progress"
	ManifestComplete   ManifestStatus = "complete"
	ManifestNoSnippets ManifestStatus = "no_snippets"
)

// SnippetRecord is one entry in the streaming snippet manifest.
type SnippetRecord struct {
	SegmentIndex   int            `json:"id"`
	ClipFile       string         `json:"file"`
	Speaker        string         `json:"speaker"`
	StartTime      float64        `json:"start"`
	EndTime        float64        `json:"end"`
	Status         string         `json:"status"`
	Text           string         `json:"text"`
	Classification *Classification `json:"classification,omitempty"`
}

// ManifestPlaceholder explains why a manifest has zero clips.
type ManifestPlaceholder struct {
	Message      string `json:"message"`
	Reason       string `json:"reason"`
	RemovedClips int    `json:"removed_clips"`
}

// Manifest is the incremental index the snippet exporter maintains. It is
// read-modify-written on every clip so a crash mid-export leaves a valid,
// partially-populated manifest rather than nothing at all.
type Manifest struct {
	SessionID   string                `json:"session_id"`
	Status      ManifestStatus        `json:"status"`
	TotalClips  int                   `json:"total_clips"`
	Clips       []SnippetRecord       `json:"clips"`
	Placeholder *ManifestPlaceholder  `json:"placeholder,omitempty"`
}

// PreflightIssue is a single actionable problem found before a stage runs.
type PreflightIssue struct {
	Component string `json:"component"`
	Message   string `json:"message"`
	Fatal     bool   `json:"fatal"`
}
