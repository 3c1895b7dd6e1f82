package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
	"github.com/gambitnl/sessionscribe/internal/model"
	"github.com/gambitnl/sessionscribe/internal/ratelimit"
)

// RemoteClassifier classifies segments through a hosted chat-completions
// API, rate-limited and retried with backoff, penalizing the limiter on a
// 429 the same way the remote transcription backend does.
type RemoteClassifier struct {
	opts    Options
	client  *http.Client
	limiter *ratelimit.Limiter
	retry   ratelimit.RetryPolicy
}

// NewRemoteClassifier returns a Backend calling a remote chat-completions API.
func NewRemoteClassifier(opts Options) *RemoteClassifier {
	return &RemoteClassifier{
		opts:    opts,
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: ratelimit.New(30, time.Minute),
		retry:   ratelimit.NewRetryPolicy(5, time.Second),
	}
}

func (c *RemoteClassifier) Name() string { return "remote" }

func (c *RemoteClassifier) Preflight(ctx context.Context) []model.PreflightIssue {
	if c.opts.APIKey == "" {
		return []model.PreflightIssue{{
			Component: "classifier",
			Message:   "remote classifier API key not configured",
			Fatal:     true,
		}}
	}
	return nil
}

func (c *RemoteClassifier) ClassifySegments(ctx context.Context, segments []model.TranscriptionSegment, characterNames, playerNames []string) ([]Result, error) {
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

		var response string
		err := ratelimit.Do(ctx, c.retry, func() error {
			var callErr error
			response, callErr = c.call(ctx, prompt)
			return callErr
		})

		if err != nil {
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

func (c *RemoteClassifier) call(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	payload, _ := json.Marshal(map[string]any{
		"model":    c.opts.Model,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.APIURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperrors.New(fmt.Errorf("remote classifier request: %w", err)).
			Component("classifier").Category(apperrors.CategoryNetwork).Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.Penalize()
		return "", apperrors.New(fmt.Errorf("remote classifier rate limited")).
			Component("classifier").Category(apperrors.CategoryRateLimit).Build()
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.New(fmt.Errorf("remote classifier status %d", resp.StatusCode)).
			Component("classifier").Category(apperrors.CategoryNetwork).Build()
	}

	var body struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperrors.New(fmt.Errorf("decode remote classifier response: %w", err)).
			Component("classifier").Category(apperrors.CategoryNetwork).Build()
	}
	if len(body.Choices) == 0 {
		return "", apperrors.New(fmt.Errorf("remote classifier returned no choices")).
			Component("classifier").Category(apperrors.CategoryNetwork).Build()
	}
	return body.Choices[0].Message.Content, nil
}

// isRateLimitStatus mirrors the original's belt-and-suspenders rate-limit
// detection: explicit 429s, or the substring surfacing in error text from
// SDKs that don't expose a structured status.
func isRateLimitStatus(statusCode int, message string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "rate_limit") || strings.Contains(lower, "429")
}
