package format

import "github.com/gambitnl/sessionscribe/internal/model"

// Statistics summarizes a session's classified segments.
type Statistics struct {
	TotalDurationSeconds  float64        `json:"total_duration_seconds"`
	TotalDurationFormatted string        `json:"total_duration_formatted"`
	TotalSegments         int            `json:"total_segments"`
	ICSegments            int            `json:"ic_segments"`
	OOCSegments           int            `json:"ooc_segments"`
	MixedSegments         int            `json:"mixed_segments"`
	ICPercentage          float64        `json:"ic_percentage"`
	ICDurationSeconds     float64        `json:"ic_duration_seconds"`
	ICDurationFormatted   string         `json:"ic_duration_formatted"`
	SpeakerDistribution   map[string]int `json:"speaker_distribution"`
	CharacterAppearances  map[string]int `json:"character_appearances"`
}

// GenerateStats computes session statistics from labeled segments.
//
// ICDurationSeconds deliberately only sums segments classified strictly as
// IC (unlike the IC-only text/SRT exports, which also include MIXED
// segments) — it answers "how much pure in-character play happened",
// a different question than "what should I read if I only care about the
// story", which the MIXED-inclusive filters answer.
func GenerateStats(segments []model.LabeledSegment) Statistics {
	stats := Statistics{
		SpeakerDistribution:  map[string]int{},
		CharacterAppearances: map[string]int{},
	}
	stats.TotalSegments = len(segments)

	var icDuration float64
	for _, seg := range segments {
		switch seg.Classification {
		case model.InCharacter:
			stats.ICSegments++
			icDuration += seg.Duration()
		case model.OutOfCharacter:
			stats.OOCSegments++
		case model.Mixed:
			stats.MixedSegments++
		}

		speaker := seg.Speaker
		if speaker == "" {
			speaker = "UNKNOWN"
		}
		stats.SpeakerDistribution[speaker]++

		if seg.Character != "" {
			stats.CharacterAppearances[seg.Character]++
		}
	}

	if len(segments) > 0 {
		stats.TotalDurationSeconds = segments[len(segments)-1].EndTime
		stats.ICPercentage = float64(stats.ICSegments) / float64(stats.TotalSegments) * 100
	}
	stats.TotalDurationFormatted = FormatTimestamp(stats.TotalDurationSeconds)
	stats.ICDurationSeconds = icDuration
	stats.ICDurationFormatted = FormatTimestamp(icDuration)

	return stats
}
