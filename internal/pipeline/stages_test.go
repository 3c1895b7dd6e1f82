package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gambitnl/sessionscribe/internal/align"
	"github.com/gambitnl/sessionscribe/internal/classify"
	"github.com/gambitnl/sessionscribe/internal/model"
)

func TestStageIndex_MatchesOneBasedPosition(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, stageIndex(model.StageAudioConverted))
	assert.Equal(t, len(model.Stages), stageIndex(model.Stages[len(model.Stages)-1]))
}

func TestStageIndex_UnknownStageReturnsZero(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, stageIndex(model.PipelineStage("NOT_A_REAL_STAGE")))
}

func TestFallbackSpeakers_SpansWholeDuration(t *testing.T) {
	t.Parallel()
	speakers := fallbackSpeakers(123.4)
	assert.Len(t, speakers, 1)
	assert.Equal(t, unknownSpeakerFallback, speakers[0].Speaker)
	assert.Equal(t, 0.0, speakers[0].StartTime)
	assert.Equal(t, 123.4, speakers[0].EndTime)
}

func TestCountUniqueSpeakers(t *testing.T) {
	t.Parallel()
	aligned := []align.Aligned{
		{Speaker: "SPEAKER_00"},
		{Speaker: "SPEAKER_01"},
		{Speaker: "SPEAKER_00"},
	}
	assert.Equal(t, 2, countUniqueSpeakers(aligned))
}

func TestCountUniqueSpeakers_Empty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, countUniqueSpeakers(nil))
}

func TestDefaultClassifications_AllICWithFullConfidence(t *testing.T) {
	t.Parallel()
	segments := []model.TranscriptionSegment{{Text: "a"}, {Text: "b"}}
	results := defaultClassifications(segments)

	assert.Len(t, results, 2)
	for i, r := range results {
		assert.Equal(t, i, r.SegmentIndex)
		assert.Equal(t, model.InCharacter, r.Classification)
		assert.Equal(t, 1.0, r.Confidence)
		assert.Equal(t, "classification skipped", r.Reasoning)
	}
}

func TestMergeLabeled_CombinesByIndex(t *testing.T) {
	t.Parallel()
	aligned := []align.Aligned{
		{TranscriptionSegment: model.TranscriptionSegment{StartTime: 0, EndTime: 5, Text: "hello"}, Speaker: "SPEAKER_00"},
		{TranscriptionSegment: model.TranscriptionSegment{StartTime: 5, EndTime: 10, Text: "world"}, Speaker: "SPEAKER_01"},
	}
	classifications := []classify.Result{
		{SegmentIndex: 0, Classification: model.InCharacter, Confidence: 0.9, Reasoning: "sounds IC"},
		{SegmentIndex: 1, Classification: model.OutOfCharacter, Confidence: 0.8, Reasoning: "banter"},
	}

	labeled := mergeLabeled(aligned, classifications)

	assert.Len(t, labeled, 2)
	assert.Equal(t, "SPEAKER_00", labeled[0].Speaker)
	assert.Equal(t, model.InCharacter, labeled[0].Classification)
	assert.Equal(t, "SPEAKER_01", labeled[1].Speaker)
	assert.Equal(t, model.OutOfCharacter, labeled[1].Classification)
}

func TestMergeLabeled_MissingClassificationDefaultsToIC(t *testing.T) {
	t.Parallel()
	aligned := []align.Aligned{
		{TranscriptionSegment: model.TranscriptionSegment{Text: "hello"}, Speaker: "SPEAKER_00"},
	}
	labeled := mergeLabeled(aligned, nil)

	assert.Len(t, labeled, 1)
	assert.Equal(t, model.InCharacter, labeled[0].Classification)
	assert.Equal(t, classify.DefaultConfidence, labeled[0].Confidence)
}

func TestIcOnlyText_DropsOOCAndSortsByStartTime(t *testing.T) {
	t.Parallel()
	labeled := []model.LabeledSegment{
		{StartTime: 10, Text: "second", Classification: model.InCharacter},
		{StartTime: 0, Text: "first", Classification: model.Mixed},
		{StartTime: 5, Text: "dropped", Classification: model.OutOfCharacter},
	}

	text := icOnlyText(labeled)

	assert.Equal(t, "first second", text)
}

func TestIcOnlyText_Empty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", icOnlyText(nil))
}

func TestSegmentsToAny_PreservesOrderAndCount(t *testing.T) {
	t.Parallel()
	segments := []model.TranscriptionSegment{{Text: "a"}, {Text: "b"}}
	out := segmentsToAny(segments)
	assert.Len(t, out, 2)
	assert.Equal(t, segments[0], out[0])
}
