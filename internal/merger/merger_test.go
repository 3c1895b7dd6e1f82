package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gambitnl/sessionscribe/internal/model"
)

func TestMerge_Empty(t *testing.T) {
	t.Parallel()
	m := New()
	assert.Nil(t, m.Merge(nil))
}

func TestMerge_SingleChunkPassesThrough(t *testing.T) {
	t.Parallel()
	m := New()
	chunk := model.ChunkTranscription{
		ChunkIndex: 0,
		StartTime:  0,
		EndTime:    10,
		Segments: []model.TranscriptionSegment{
			{StartTime: 0, EndTime: 5, Text: "hello"},
			{StartTime: 5, EndTime: 10, Text: "world"},
		},
	}
	result := m.Merge([]model.ChunkTranscription{chunk})
	assert.Equal(t, chunk.Segments, result)
}

func TestMerge_DropsDuplicateOverlapAtBoundary(t *testing.T) {
	t.Parallel()
	m := New()
	chunks := []model.ChunkTranscription{
		{
			ChunkIndex: 0,
			StartTime:  0,
			EndTime:    10,
			Segments: []model.TranscriptionSegment{
				{StartTime: 0, EndTime: 5, Text: "one"},
				{StartTime: 5, EndTime: 12, Text: "spans the overlap, from chunk 0"},
			},
		},
		{
			ChunkIndex: 1,
			StartTime:  8,
			EndTime:    20,
			Segments: []model.TranscriptionSegment{
				{StartTime: 8, EndTime: 12, Text: "spans the overlap, from chunk 1"},
				{StartTime: 12, EndTime: 20, Text: "two"},
			},
		},
	}

	result := m.Merge(chunks)

	// chunk 0's boundary-straddling segment (EndTime 12 > splitTime 10) is
	// dropped, chunk 1's straddling segment (StartTime 8 < splitTime 10) is
	// also dropped — the original time-split tradeoff can clip a word, but
	// never keeps both copies.
	for _, seg := range result {
		assert.NotEqual(t, "spans the overlap, from chunk 0", seg.Text)
	}
	texts := make([]string, len(result))
	for i, s := range result {
		texts[i] = s.Text
	}
	assert.Contains(t, texts, "one")
	assert.Contains(t, texts, "two")
}

func TestMerge_ThreeChunksPreservesOrder(t *testing.T) {
	t.Parallel()
	m := New()
	chunks := []model.ChunkTranscription{
		{ChunkIndex: 0, EndTime: 10, Segments: []model.TranscriptionSegment{{StartTime: 0, EndTime: 9, Text: "a"}}},
		{ChunkIndex: 1, EndTime: 20, Segments: []model.TranscriptionSegment{{StartTime: 10, EndTime: 19, Text: "b"}}},
		{ChunkIndex: 2, EndTime: 30, Segments: []model.TranscriptionSegment{{StartTime: 20, EndTime: 29, Text: "c"}}},
	}

	result := m.Merge(chunks)

	assert.Len(t, result, 3)
	assert.Equal(t, "a", result[0].Text)
	assert.Equal(t, "b", result[1].Text)
	assert.Equal(t, "c", result[2].Text)
}

func TestFullText(t *testing.T) {
	t.Parallel()
	segments := []model.TranscriptionSegment{
		{Text: "hello"},
		{Text: "world"},
	}
	assert.Equal(t, "hello world", FullText(segments))
}

func TestFullText_Empty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", FullText(nil))
}
