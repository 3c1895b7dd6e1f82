package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gambitnl/sessionscribe/internal/model"
)

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00"},
		{65, "00:01:05"},
		{3725, "01:02:05"},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.want, FormatTimestamp(tt.seconds))
	}
}

func sampleSegments() []model.LabeledSegment {
	return []model.LabeledSegment{
		{StartTime: 0, EndTime: 5, Text: "I draw my sword", Speaker: "SPEAKER_00", Character: "Thorn", Classification: model.InCharacter},
		{StartTime: 5, EndTime: 10, Text: "wait can we pause for a snack", Speaker: "SPEAKER_01", Classification: model.OutOfCharacter},
		{StartTime: 10, EndTime: 15, Text: "ok sure, also I cast fireball", Speaker: "SPEAKER_00", Character: "Thorn", Classification: model.Mixed},
	}
}

func TestFormatICOnly_KeepsICAndMixedDropsOOC(t *testing.T) {
	t.Parallel()
	out := FormatICOnly(sampleSegments(), nil)
	assert.Contains(t, out, "I draw my sword")
	assert.Contains(t, out, "also I cast fireball")
	assert.NotContains(t, out, "snack")
}

func TestFormatOOCOnly_KeepsOOCAndMixedDropsIC(t *testing.T) {
	t.Parallel()
	out := FormatOOCOnly(sampleSegments(), nil)
	assert.Contains(t, out, "snack")
	assert.Contains(t, out, "also I cast fireball")
	assert.NotContains(t, out, "I draw my sword")
}

func TestFormatFullTranscript_IncludesEverySegment(t *testing.T) {
	t.Parallel()
	out := FormatFullTranscript(sampleSegments(), nil)
	assert.Equal(t, 3, strings.Count(out, "]"))
}

func TestFormatJSON_RoundTripsMetadataAndSegments(t *testing.T) {
	t.Parallel()
	out, err := FormatJSON(sampleSegments(), map[string]string{"SPEAKER_00": "Alice"}, map[string]any{"session_id": "s1"})
	require.NoError(t, err)
	assert.Contains(t, out, `"session_id": "s1"`)
	assert.Contains(t, out, `"speaker_name": "Alice"`)
	assert.Contains(t, out, `"character": "Thorn"`)
}

func TestGenerateStats_CountsByRoleAndICDurationOnlyPureIC(t *testing.T) {
	t.Parallel()
	stats := GenerateStats(sampleSegments())

	assert.Equal(t, 3, stats.TotalSegments)
	assert.Equal(t, 1, stats.ICSegments)
	assert.Equal(t, 1, stats.OOCSegments)
	assert.Equal(t, 1, stats.MixedSegments)
	// Only the strictly-IC segment (0-5s) counts toward ICDurationSeconds;
	// the MIXED segment's duration is excluded even though MIXED text is
	// included in the IC-only transcript export.
	assert.Equal(t, 5.0, stats.ICDurationSeconds)
	assert.InDelta(t, 33.33, stats.ICPercentage, 0.1)
}

func TestGenerateStats_Empty(t *testing.T) {
	t.Parallel()
	stats := GenerateStats(nil)
	assert.Equal(t, 0, stats.TotalSegments)
	assert.Equal(t, 0.0, stats.ICPercentage)
}
