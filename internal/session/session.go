// Package session owns the Session type and the on-disk layout rules a
// session's output directory must follow.
package session

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

// Session describes one TTRPG recording being processed through the
// pipeline, carrying the identifiers and options every stage needs.
type Session struct {
	ID                   string
	CampaignID           string
	PartyID              string
	CharacterNames       []string
	PlayerNames          []string
	NumSpeakers          int
	Language             string
	Resume               bool
	TranscriptionBackend string
	DiarizationBackend   string
	ClassificationBackend string
}

var unsafeChars = regexp.MustCompile(`[\s/:]`)
var nonWord = regexp.MustCompile(`[^\w\-]`)

// SanitizeFilename strips characters that are invalid in path segments,
// matching the rule the original transcript exporter applies to session and
// character names before they become file names.
func SanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = nonWord.ReplaceAllString(name, "")
	return name
}

// SafeID returns the session ID sanitized for use as a path component.
func (s *Session) SafeID() string {
	return SanitizeFilename(s.ID)
}

// OutputDirName returns the timestamped directory name a new run of this
// session creates: YYYYMMDD_HHMMSS_<session_id>.
func OutputDirName(now time.Time, sessionID string) string {
	return fmt.Sprintf("%s_%s", now.Format("20060102_150405"), SanitizeFilename(sessionID))
}

// OutputDir joins baseDir with a fresh timestamped directory name for this
// session. Callers are responsible for creating it (os.MkdirAll) — this
// package only computes the path, keeping I/O out of naming logic.
func OutputDir(baseDir string, now time.Time, sessionID string) string {
	return filepath.Join(baseDir, OutputDirName(now, sessionID))
}

// CheckpointDir returns the directory the checkpoint store exclusively owns
// for this session, nested under the base output directory's "_checkpoints"
// sibling so it survives across resumed runs that create new timestamped
// output directories.
func CheckpointDir(baseDir, sessionID string) string {
	return filepath.Join(baseDir, "_checkpoints", SanitizeFilename(sessionID))
}
