// Package classify implements the IC/OOC/MIXED classifier ensemble: a local
// Ollama-backed backend, a remote rate-limited API backend, and an offloaded
// file-exchange backend, sharing a regex-based response parser.
package classify

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/gambitnl/sessionscribe/internal/model"
)

// Result is one segment's classification outcome.
type Result struct {
	SegmentIndex int                `json:"segment_index"`
	Classification model.Classification `json:"classification"`
	Confidence   float64            `json:"confidence"`
	Reasoning    string             `json:"reasoning"`
	Character    string             `json:"character,omitempty"`
}

// DefaultConfidence is used when a response's confidence field is missing or
// unparseable.
const DefaultConfidence = 0.7

// ClampConfidence restricts a parsed confidence value to [0, 1].
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Backend classifies a run of segments, using prev/next segment text as
// context for each classification.
type Backend interface {
	ClassifySegments(ctx context.Context, segments []model.TranscriptionSegment, characterNames, playerNames []string) ([]Result, error)
	Preflight(ctx context.Context) []model.PreflightIssue
	Name() string
}

// PromptTemplate renders the classification prompt the same way every
// backend does, with the reply-in-Dutch field keys the downstream parser
// expects (Classificatie/Reden/Vertrouwen/Personage): this is a fixed
// behavioral contract with the prompt/response format, not an artifact of
// implementation language, so it is preserved exactly.
func PromptTemplate(template, prevText, currentText, nextText string, characterNames, playerNames []string) string {
	charList := "Unknown"
	if len(characterNames) > 0 {
		charList = strings.Join(characterNames, ", ")
	}
	playerList := "Unknown"
	if len(playerNames) > 0 {
		playerList = strings.Join(playerNames, ", ")
	}

	r := strings.NewReplacer(
		"{char_list}", charList,
		"{player_list}", playerList,
		"{prev_text}", prevText,
		"{current_text}", currentText,
		"{next_text}", nextText,
	)
	return r.Replace(template)
}

var (
	classificationRe = regexp.MustCompile(`(?i)Classificatie:\s*(\w+)`)
	reasoningRe      = regexp.MustCompile(`(?is)Reden:\s*(.+?)(?:Vertrouwen:|Personage:|$)`)
	confidenceRe     = regexp.MustCompile(`(?i)Vertrouwen:\s*([\d.]+)`)
	characterRe      = regexp.MustCompile(`(?i)Personage:\s*(.+?)(?:\n|$)`)
)

// ParseResponse parses an LLM's free-text reply into a Result, defaulting to
// IN_CHARACTER with DefaultConfidence when a field can't be parsed — the
// same lenient fallback the original classifier uses so a malformed
// response never aborts the run.
func ParseResponse(response string, index int) Result {
	result := Result{
		SegmentIndex:   index,
		Classification: model.InCharacter,
		Confidence:     DefaultConfidence,
		Reasoning:      "Could not parse response",
	}

	if m := classificationRe.FindStringSubmatch(response); m != nil {
		switch strings.ToUpper(strings.TrimSpace(m[1])) {
		case string(model.InCharacter):
			result.Classification = model.InCharacter
		case string(model.OutOfCharacter):
			result.Classification = model.OutOfCharacter
		case string(model.Mixed):
			result.Classification = model.Mixed
		default:
			result.Classification = model.InCharacter
		}
	}

	if m := reasoningRe.FindStringSubmatch(response); m != nil {
		result.Reasoning = strings.TrimSpace(m[1])
	}

	if m := confidenceRe.FindStringSubmatch(response); m != nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64); err == nil {
			result.Confidence = ClampConfidence(v)
		}
	}

	if m := characterRe.FindStringSubmatch(response); m != nil {
		text := strings.TrimSpace(m[1])
		if strings.ToUpper(text) != "N/A" {
			result.Character = text
		}
	}

	return result
}

// Factory builds a Backend for the named variant.
func Factory(backend string, opts Options) (Backend, error) {
	switch backend {
	case "ollama", "":
		return NewOllamaClassifier(opts), nil
	case "remote", "groq":
		return NewRemoteClassifier(opts), nil
	case "offloaded", "colab":
		return NewOffloadedClassifier(opts), nil
	default:
		return nil, &UnknownBackendError{Backend: backend}
	}
}

// Options configures any classifier backend variant.
type Options struct {
	Model           string
	FallbackModel   string
	BaseURL         string
	PromptTemplate  string
	APIKey          string
	APIURL          string
	GDriveMountRoot string
	PollInterval    int // seconds
	Timeout         int // seconds
}

// UnknownBackendError is returned by Factory for an unrecognized name.
type UnknownBackendError struct{ Backend string }

func (e *UnknownBackendError) Error() string { return "classify: unknown backend " + e.Backend }
