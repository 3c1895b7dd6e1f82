// Package merger resolves the overlap between adjacent chunk transcriptions
// into one continuous, non-duplicated segment stream.
package merger

import (
	"strings"

	"github.com/gambitnl/sessionscribe/internal/model"
)

// Merger merges ordered ChunkTranscriptions into one segment stream.
//
// The split point is each chunk's own end time rather than a text-alignment
// search: simple and robust, even though it occasionally clips a word that
// straddles the boundary. A similarity-based longest-common-subsequence
// merge was considered and rejected in favor of this time-split approach,
// matching the original's resolution of the same tradeoff.
type Merger struct{}

// New returns a Merger.
func New() *Merger { return &Merger{} }

// Merge merges transcriptions (ordered by chunk index) into one continuous
// segment list.
func (m *Merger) Merge(transcriptions []model.ChunkTranscription) []model.TranscriptionSegment {
	if len(transcriptions) == 0 {
		return nil
	}
	if len(transcriptions) == 1 {
		return append([]model.TranscriptionSegment(nil), transcriptions[0].Segments...)
	}

	merged := append([]model.TranscriptionSegment(nil), transcriptions[0].Segments...)
	for i := 1; i < len(transcriptions); i++ {
		merged = mergeByTime(merged, transcriptions[i].Segments, transcriptions[i-1].EndTime)
	}
	return merged
}

func mergeByTime(a, b []model.TranscriptionSegment, splitTime float64) []model.TranscriptionSegment {
	result := make([]model.TranscriptionSegment, 0, len(a)+len(b))
	for _, seg := range a {
		if seg.EndTime <= splitTime {
			result = append(result, seg)
		}
	}
	for _, seg := range b {
		if seg.StartTime >= splitTime {
			result = append(result, seg)
		}
	}
	return result
}

// FullText concatenates segment text with single spaces.
func FullText(segments []model.TranscriptionSegment) string {
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}
