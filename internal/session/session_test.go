package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "session1", "session1"},
		{"spaces become underscores", "my session", "my_session"},
		{"colon and slash become underscores", "2026-07-30:session/one", "2026-07-30_session_one"},
		{"punctuation stripped", "session!@#1", "session1"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SanitizeFilename(tt.input))
		})
	}
}

func TestSession_SafeID(t *testing.T) {
	t.Parallel()
	s := &Session{ID: "campaign one: session 4"}
	assert.Equal(t, "campaign_one__session_4", s.SafeID())
}

func TestOutputDirName_IncludesTimestampAndSanitizedID(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 7, 30, 18, 4, 5, 0, time.UTC)
	name := OutputDirName(now, "my session")
	assert.Equal(t, "20260730_180405_my_session", name)
}

func TestOutputDir_JoinsBaseDir(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 7, 30, 18, 4, 5, 0, time.UTC)
	dir := OutputDir("output", now, "s1")
	assert.Equal(t, "output/20260730_180405_s1", dir)
}

func TestCheckpointDir_IsStableAcrossOutputDirTimestamps(t *testing.T) {
	t.Parallel()
	// Two runs minutes apart must resolve to the same checkpoint directory
	// for the same session, since resume needs to find what an earlier run
	// (with a different timestamped output dir) left behind.
	first := CheckpointDir("output", "s1")
	second := CheckpointDir("output", "s1")
	assert.Equal(t, first, second)
	assert.Equal(t, "output/_checkpoints/s1", first)
}
