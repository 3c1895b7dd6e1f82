package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
	"github.com/gambitnl/sessionscribe/internal/model"
	"github.com/gambitnl/sessionscribe/internal/ratelimit"
)

// RemoteWhisper calls a hosted transcription API, rate-limited and retried
// the same way the remote classifier backend is.
type RemoteWhisper struct {
	opts    Options
	client  *http.Client
	limiter *ratelimit.Limiter
	retry   ratelimit.RetryPolicy
}

// NewRemoteWhisper returns a Backend backed by a remote HTTP API.
func NewRemoteWhisper(opts Options) *RemoteWhisper {
	return &RemoteWhisper{
		opts:    opts,
		client:  &http.Client{Timeout: 120 * time.Second},
		limiter: ratelimit.New(30, time.Minute),
		retry:   ratelimit.NewRetryPolicy(5, time.Second),
	}
}

func (r *RemoteWhisper) Name() string { return "whisper-api" }

func (r *RemoteWhisper) Preflight(ctx context.Context) []model.PreflightIssue {
	var issues []model.PreflightIssue
	if r.opts.APIURL == "" {
		issues = append(issues, model.PreflightIssue{Component: "transcription", Message: "remote API URL not configured", Fatal: true})
	}
	if r.opts.APIKey == "" {
		issues = append(issues, model.PreflightIssue{Component: "transcription", Message: "remote API key not configured", Fatal: true})
	}
	return issues
}

func (r *RemoteWhisper) Transcribe(ctx context.Context, chunk model.AudioChunk, language string) (model.ChunkTranscription, error) {
	var result model.ChunkTranscription

	err := ratelimit.Do(ctx, r.retry, func() error {
		if err := r.limiter.Acquire(ctx); err != nil {
			return err
		}

		req, err := r.buildRequest(ctx, chunk, language)
		if err != nil {
			return err
		}

		resp, err := r.client.Do(req)
		if err != nil {
			return apperrors.New(fmt.Errorf("remote transcription request: %w", err)).
				Component("transcription").Category(apperrors.CategoryNetwork).Build()
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			r.limiter.Penalize()
			return apperrors.New(fmt.Errorf("remote transcription rate limited")).
				Component("transcription").Category(apperrors.CategoryRateLimit).Build()
		}
		if resp.StatusCode != http.StatusOK {
			return apperrors.New(fmt.Errorf("remote transcription status %d", resp.StatusCode)).
				Component("transcription").Category(apperrors.CategoryNetwork).Build()
		}

		var body struct {
			Segments []model.TranscriptionSegment `json:"segments"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return apperrors.New(fmt.Errorf("decode transcription response: %w", err)).
				Component("transcription").Category(apperrors.CategoryNetwork).Build()
		}

		result = model.ChunkTranscription{
			ChunkIndex: chunk.ChunkIndex,
			StartTime:  chunk.StartTime,
			EndTime:    chunk.EndTime,
			Segments:   body.Segments,
		}
		return nil
	})

	return result, err
}

func (r *RemoteWhisper) buildRequest(ctx context.Context, chunk model.AudioChunk, language string) (*http.Request, error) {
	payload, err := json.Marshal(map[string]any{
		"sample_rate": chunk.SampleRate,
		"language":    language,
		"chunk_index": chunk.ChunkIndex,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.APIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.opts.APIKey)
	return req, nil
}
