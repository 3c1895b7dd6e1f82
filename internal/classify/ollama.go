package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
	"github.com/gambitnl/sessionscribe/internal/model"
)

// memoryErrorTriggers are substrings of a local model runtime's error
// message that indicate an out-of-memory condition worth retrying at a
// lower resource footprint rather than failing the segment outright.
var memoryErrorTriggers = []string{
	"memory layout",
	"out of memory",
	"cuda out of memory",
	"not enough memory",
	"oom",
}

func isMemoryError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, trigger := range memoryErrorTriggers {
		if strings.Contains(msg, trigger) {
			return true
		}
	}
	return false
}

var modelSizeRe = regexp.MustCompile(`(\d+)\s*b`)

// estimateRequiredMemoryGB guesses RAM headroom from a model name's
// parameter-count suffix (e.g. "llama3:70b"), returning 0 when no size
// suffix is present.
func estimateRequiredMemoryGB(modelName string) int {
	m := modelSizeRe.FindStringSubmatch(strings.ToLower(modelName))
	if m == nil {
		return 0
	}
	size, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	switch {
	case size >= 20:
		return 16
	case size >= 14:
		return 12
	case size >= 10:
		return 10
	case size >= 7:
		return 8
	case size >= 5:
		return 6
	default:
		return 0
	}
}

func estimateTotalMemoryGB() (float64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return float64(v.Total) / (1024 * 1024 * 1024), nil
}

// OllamaClassifier classifies segments through a local Ollama-compatible
// HTTP server, retrying a memory error first with low-VRAM generation
// options and then, if that also fails, with a configured fallback model.
type OllamaClassifier struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

// NewOllamaClassifier returns a Backend calling a local Ollama server.
func NewOllamaClassifier(opts Options) *OllamaClassifier {
	if opts.Model == "" {
		opts.Model = "llama3"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434"
	}
	return &OllamaClassifier{
		opts:   opts,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
}

func (c *OllamaClassifier) Name() string { return "ollama" }

func (c *OllamaClassifier) Preflight(ctx context.Context) []model.PreflightIssue {
	var issues []model.PreflightIssue

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/api/tags", nil)
	if resp, err := c.client.Do(req); err != nil {
		issues = append(issues, model.PreflightIssue{
			Component: "classifier",
			Message:   fmt.Sprintf("cannot reach Ollama at %s: %v", c.opts.BaseURL, err),
			Fatal:     true,
		})
	} else {
		resp.Body.Close()
	}

	if required := estimateRequiredMemoryGB(c.opts.Model); required > 0 {
		if available, err := estimateTotalMemoryGB(); err == nil && available < float64(required) {
			issues = append(issues, model.PreflightIssue{
				Component: "classifier",
				Message: fmt.Sprintf(
					"Ollama model %q typically needs ~%dGB RAM, but only %.1fGB was detected; expect memory errors unless low_vram, reduced context, or a smaller model is used",
					c.opts.Model, required, available,
				),
			})
		}
	}

	return issues
}

func (c *OllamaClassifier) ClassifySegments(ctx context.Context, segments []model.TranscriptionSegment, characterNames, playerNames []string) ([]Result, error) {
	results := make([]Result, len(segments))
	for i, seg := range segments {
		prevText, nextText := "", ""
		if i > 0 {
			prevText = segments[i-1].Text
		}
		if i < len(segments)-1 {
			nextText = segments[i+1].Text
		}

		prompt := PromptTemplate(c.opts.PromptTemplate, prevText, seg.Text, nextText, characterNames, playerNames)

		response, err := c.generateWithRetry(ctx, prompt, i)
		if err != nil || response == "" {
			results[i] = Result{
				SegmentIndex:   i,
				Classification: model.InCharacter,
				Confidence:     DefaultConfidence,
				Reasoning:      "Classification failed, defaulted to IC",
			}
			continue
		}
		results[i] = ParseResponse(response, i)
	}
	return results, nil
}

func (c *OllamaClassifier) generateWithRetry(ctx context.Context, prompt string, index int) (string, error) {
	response, err := c.generate(ctx, c.opts.Model, prompt, false)
	if err == nil {
		return response, nil
	}

	if isMemoryError(err) {
		c.logger.Warn("model hit memory error, retrying with low-VRAM settings", "model", c.opts.Model, "segment", index, "error", err)
		if lowVramResp, lowVramErr := c.generate(ctx, c.opts.Model, prompt, true); lowVramErr == nil {
			return lowVramResp, nil
		}

		if c.opts.FallbackModel != "" && c.opts.FallbackModel != c.opts.Model {
			c.logger.Warn("retrying with fallback model", "model", c.opts.Model, "fallback", c.opts.FallbackModel, "segment", index)
			if fallbackResp, fallbackErr := c.generate(ctx, c.opts.FallbackModel, prompt, false); fallbackErr == nil {
				return fallbackResp, nil
			}
		}
	}

	c.logger.Warn("classification failed for segment", "segment", index, "model", c.opts.Model, "error", err)
	return "", err
}

func (c *OllamaClassifier) generate(ctx context.Context, model string, prompt string, lowVRAM bool) (string, error) {
	options := map[string]any{
		"temperature": 0.1,
		"num_predict": 200,
		"num_ctx":     2048,
	}
	if lowVRAM {
		options["low_vram"] = true
		options["num_ctx"] = 1024
	}

	payload, _ := json.Marshal(map[string]any{
		"model":   model,
		"prompt":  prompt,
		"stream":  false,
		"options": options,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperrors.New(fmt.Errorf("ollama generate request: %w", err)).
			Component("classifier").Category(apperrors.CategoryNetwork).Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.New(fmt.Errorf("ollama generate status %d", resp.StatusCode)).
			Component("classifier").Category(apperrors.CategoryNetwork).Build()
	}

	var body struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperrors.New(fmt.Errorf("decode ollama response: %w", err)).
			Component("classifier").Category(apperrors.CategoryNetwork).Build()
	}
	return body.Response, nil
}
