package format

import (
	"fmt"
	"strings"

	"github.com/gambitnl/sessionscribe/internal/model"
)

// FormatSRTTime converts seconds to SRT's HH:MM:SS,mmm format.
func FormatSRTTime(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	millis := int((seconds - float64(total)) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// ExportSRT renders segments as an SRT subtitle document, filtered by
// filter. IC-only/OOC-only filters include MIXED segments, matching the
// same backward-compatibility rule the plain-text exports apply — SRT is
// just another rendering of the same filtered segment set, so it must agree
// with the text exports on which segments survive a given filter.
func ExportSRT(segments []model.LabeledSegment, filter model.TranscriptFilter, includeSpeaker bool) string {
	var b strings.Builder
	index := 1
	for _, seg := range segments {
		if !passesFilter(seg, filter) {
			continue
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n", index, FormatSRTTime(seg.StartTime), FormatSRTTime(seg.EndTime))
		text := strings.TrimSpace(seg.Text)
		if includeSpeaker && seg.Speaker != "" {
			fmt.Fprintf(&b, "[%s] %s\n\n", seg.Speaker, text)
		} else {
			fmt.Fprintf(&b, "%s\n\n", text)
		}
		index++
	}
	return b.String()
}
