package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
	"github.com/gambitnl/sessionscribe/internal/ratelimit"
)

// Options configures a RemoteExtractor.
type Options struct {
	APIURL         string
	APIKey         string
	Model          string
	PromptTemplate string
}

const defaultPromptTemplate = `Context: D&D campaign
Characters: %s
Players: %s

Read the following in-character session text and extract campaign knowledge
as JSON with the shape {"quests":[...],"npcs":[...],"plot_hooks":[...],"locations":[...],"items":[...]}.
Only include entities actually mentioned; omit anything uncertain.

Session text:
%s`

// RemoteExtractor calls a hosted chat-completions API to extract entities,
// rate-limited and retried the same way the classifier and transcription
// remote backends are.
type RemoteExtractor struct {
	opts    Options
	client  *http.Client
	limiter *ratelimit.Limiter
	retry   ratelimit.RetryPolicy
}

// NewRemoteExtractor returns a Backend calling a remote chat-completions API.
func NewRemoteExtractor(opts Options) *RemoteExtractor {
	if opts.PromptTemplate == "" {
		opts.PromptTemplate = defaultPromptTemplate
	}
	return &RemoteExtractor{
		opts:    opts,
		client:  &http.Client{Timeout: 120 * time.Second},
		limiter: ratelimit.New(20, time.Minute),
		retry:   ratelimit.NewRetryPolicy(5, time.Second),
	}
}

func (e *RemoteExtractor) Extract(ctx context.Context, icText string, characterNames, playerNames []string) (Extraction, error) {
	prompt := fmt.Sprintf(e.opts.PromptTemplate, joinOrNone(characterNames), joinOrNone(playerNames), icText)

	var response string
	err := ratelimit.Do(ctx, e.retry, func() error {
		var callErr error
		response, callErr = e.call(ctx, prompt)
		return callErr
	})
	if err != nil {
		return Extraction{}, err
	}

	var extraction Extraction
	if err := json.Unmarshal([]byte(response), &extraction); err != nil {
		return Extraction{}, apperrors.New(fmt.Errorf("parse knowledge extraction response: %w", err)).
			Component("knowledge").Category(apperrors.CategoryKnowledgeExtraction).Build()
	}
	return extraction, nil
}

func (e *RemoteExtractor) call(ctx context.Context, prompt string) (string, error) {
	if err := e.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	payload, _ := json.Marshal(map[string]any{
		"model":    e.opts.Model,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.opts.APIURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.opts.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", apperrors.New(fmt.Errorf("knowledge extraction request: %w", err)).
			Component("knowledge").Category(apperrors.CategoryNetwork).Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		e.limiter.Penalize()
		return "", apperrors.New(fmt.Errorf("knowledge extraction rate limited")).
			Component("knowledge").Category(apperrors.CategoryRateLimit).Build()
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.New(fmt.Errorf("knowledge extraction status %d", resp.StatusCode)).
			Component("knowledge").Category(apperrors.CategoryNetwork).Build()
	}

	var body struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperrors.New(fmt.Errorf("decode knowledge extraction response: %w", err)).
			Component("knowledge").Category(apperrors.CategoryNetwork).Build()
	}
	if len(body.Choices) == 0 {
		return "", apperrors.New(fmt.Errorf("knowledge extraction returned no choices")).
			Component("knowledge").Category(apperrors.CategoryNetwork).Build()
	}
	return body.Choices[0].Message.Content, nil
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	out := values[0]
	for _, v := range values[1:] {
		out += ", " + v
	}
	return out
}
