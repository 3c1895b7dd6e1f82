// Package align assigns a speaker label to each transcription segment by
// finding the diarized speaker turn with the greatest time overlap.
package align

import (
	"github.com/gambitnl/sessionscribe/internal/model"
)

// UnknownSpeaker is the label assigned when no speaker segment overlaps a
// transcription segment at all.
const UnknownSpeaker = "UNKNOWN"

// Aligned is a transcription segment enriched with its best-match speaker.
type Aligned struct {
	model.TranscriptionSegment
	Speaker string
}

// Assign labels each transcription segment with the speaker segment it
// overlaps the most, in wall-clock time. Ties keep the first speaker seen
// (matches the original's strict greater-than comparison).
func Assign(segments []model.TranscriptionSegment, speakers []model.SpeakerSegment) []Aligned {
	result := make([]Aligned, 0, len(segments))
	for _, seg := range segments {
		bestSpeaker := UnknownSpeaker
		maxOverlap := 0.0

		for _, sp := range speakers {
			overlap := overlapSeconds(seg.StartTime, seg.EndTime, sp.StartTime, sp.EndTime)
			if overlap > maxOverlap {
				maxOverlap = overlap
				bestSpeaker = sp.Speaker
			}
		}

		result = append(result, Aligned{TranscriptionSegment: seg, Speaker: bestSpeaker})
	}
	return result
}

func overlapSeconds(aStart, aEnd, bStart, bEnd float64) float64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	overlap := end - start
	if overlap < 0 {
		return 0
	}
	return overlap
}
