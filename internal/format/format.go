// Package format renders labeled segments into the transcript export
// formats: full/IC-only/OOC-only plain text, JSON, SRT, and statistics.
package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gambitnl/sessionscribe/internal/model"
)

// FormatTimestamp renders seconds as HH:MM:SS.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

// speakerLabel resolves a segment's display name, preferring the character
// name for IC lines and the mapped person name when a speaker profile is
// available.
func speakerLabel(seg model.LabeledSegment, speakerProfiles map[string]string) string {
	speaker := seg.Speaker
	if speaker == "" {
		speaker = "UNKNOWN"
	}
	if name, ok := speakerProfiles[speaker]; ok {
		speaker = name
	}
	if seg.Character != "" && seg.Classification == model.InCharacter {
		return fmt.Sprintf("%s as %s", speaker, seg.Character)
	}
	return speaker
}

// FormatFullTranscript renders every segment with timestamp, speaker label,
// and classification marker.
func FormatFullTranscript(segments []model.LabeledSegment, speakerProfiles map[string]string) string {
	var b strings.Builder
	writeHeader(&b, "FULL VERSION")
	for _, seg := range segments {
		fmt.Fprintf(&b, "[%s] %s (%s): %s\n",
			FormatTimestamp(seg.StartTime), speakerLabel(seg, speakerProfiles), seg.Classification, seg.Text)
	}
	return b.String()
}

// includesMixed reports whether filter passes a MIXED segment through.
// IC-only and OOC-only both include MIXED content deliberately: a segment
// straddling in- and out-of-character speech is relevant to readers of
// either view, not just the "MIXED" view.
func includesMixed(filter model.TranscriptFilter) bool {
	switch filter {
	case model.FilterICOnly, model.FilterOOCOnly, model.FilterAll, model.FilterMixedOnly:
		return true
	default:
		return false
	}
}

// passesFilter reports whether seg should appear under filter.
func passesFilter(seg model.LabeledSegment, filter model.TranscriptFilter) bool {
	switch filter {
	case model.FilterAll:
		return true
	case model.FilterICOnly:
		return seg.Classification != model.OutOfCharacter
	case model.FilterOOCOnly:
		return seg.Classification != model.InCharacter
	case model.FilterMixedOnly:
		return seg.Classification == model.Mixed
	default:
		return true
	}
}

// FormatICOnly renders the in-character narrative view: OOC segments are
// dropped, MIXED segments are kept (backward-compatibility rule).
func FormatICOnly(segments []model.LabeledSegment, speakerProfiles map[string]string) string {
	var b strings.Builder
	writeHeader(&b, "IN-CHARACTER ONLY")
	for _, seg := range segments {
		if !passesFilter(seg, model.FilterICOnly) {
			continue
		}
		display := seg.Character
		if display == "" {
			display = speakerLabel(seg, speakerProfiles)
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", FormatTimestamp(seg.StartTime), display, seg.Text)
	}
	return b.String()
}

// FormatOOCOnly renders the banter/meta-discussion view: IC segments are
// dropped, MIXED segments are kept (backward-compatibility rule).
func FormatOOCOnly(segments []model.LabeledSegment, speakerProfiles map[string]string) string {
	var b strings.Builder
	writeHeader(&b, "OUT-OF-CHARACTER ONLY")
	for _, seg := range segments {
		if !passesFilter(seg, model.FilterOOCOnly) {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", FormatTimestamp(seg.StartTime), speakerLabel(seg, speakerProfiles), seg.Text)
	}
	return b.String()
}

func writeHeader(b *strings.Builder, title string) {
	bar := strings.Repeat("=", 80)
	fmt.Fprintf(b, "%s\nD&D SESSION TRANSCRIPT - %s\n%s\n\n", bar, title, bar)
}

// jsonSegment is the per-segment shape of the JSON export.
type jsonSegment struct {
	StartTime               float64      `json:"start_time"`
	EndTime                 float64      `json:"end_time"`
	Duration                float64      `json:"duration"`
	Text                    string       `json:"text"`
	SpeakerID               string       `json:"speaker_id"`
	SpeakerName             *string      `json:"speaker_name"`
	Classification          model.Classification `json:"classification"`
	ClassificationConfidence float64     `json:"classification_confidence"`
	ClassificationReasoning string       `json:"classification_reasoning"`
	Character               *string      `json:"character"`
	Words                   []model.Word `json:"words"`
}

// FormatJSON renders every segment with full metadata for downstream tooling.
func FormatJSON(segments []model.LabeledSegment, speakerProfiles map[string]string, metadata map[string]any) (string, error) {
	out := struct {
		Metadata map[string]any `json:"metadata"`
		Segments []jsonSegment  `json:"segments"`
	}{Metadata: metadata, Segments: make([]jsonSegment, len(segments))}

	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}

	for i, seg := range segments {
		js := jsonSegment{
			StartTime:                seg.StartTime,
			EndTime:                  seg.EndTime,
			Duration:                 seg.Duration(),
			Text:                     seg.Text,
			SpeakerID:                seg.Speaker,
			Classification:           seg.Classification,
			ClassificationConfidence: seg.Confidence,
			ClassificationReasoning:  seg.Reasoning,
			Words:                    seg.Words,
		}
		if name, ok := speakerProfiles[seg.Speaker]; ok {
			js.SpeakerName = &name
		}
		if seg.Character != "" {
			character := seg.Character
			js.Character = &character
		}
		out.Segments[i] = js
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
