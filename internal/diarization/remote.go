package diarization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
	"github.com/gambitnl/sessionscribe/internal/model"
	"github.com/gambitnl/sessionscribe/internal/ratelimit"
)

// RemoteDiarizer offloads diarization to a remote inference API.
type RemoteDiarizer struct {
	opts   Options
	client *http.Client
	retry  ratelimit.RetryPolicy
}

// NewRemoteDiarizer returns a Backend calling a remote diarization API.
func NewRemoteDiarizer(opts Options) *RemoteDiarizer {
	return &RemoteDiarizer{
		opts:   opts,
		client: &http.Client{Timeout: 120 * time.Second},
		retry:  ratelimit.NewRetryPolicy(3, time.Second),
	}
}

func (r *RemoteDiarizer) Name() string { return "huggingface" }

func (r *RemoteDiarizer) Preflight(ctx context.Context) []model.PreflightIssue {
	if r.opts.APIToken == "" {
		return []model.PreflightIssue{{
			Component: "diarizer",
			Message:   "API token not set; remote diarization backend is unavailable",
		}}
	}
	return nil
}

func (r *RemoteDiarizer) Diarize(ctx context.Context, wavPath string) ([]model.SpeakerSegment, error) {
	if r.opts.APIToken == "" {
		return nil, apperrors.New(fmt.Errorf("diarization API token not set")).
			Component("diarizer").Category(apperrors.CategoryConfiguration).Build()
	}

	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, apperrors.New(fmt.Errorf("read audio for diarization: %w", err)).
			Component("diarizer").Category(apperrors.CategoryFileIO).Build()
	}

	var segments []model.SpeakerSegment
	err = ratelimit.Do(ctx, r.retry, func() error {
		segments, err = r.call(ctx, data)
		return err
	})
	return segments, err
}

func (r *RemoteDiarizer) call(ctx context.Context, data []byte) ([]model.SpeakerSegment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.APIURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.opts.APIToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperrors.New(fmt.Errorf("diarization API request: %w", err)).
			Component("diarizer").Category(apperrors.CategoryNetwork).Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		// Model is cold-loading on the provider's side.
		return nil, apperrors.New(fmt.Errorf("diarization model loading (503)")).
			Component("diarizer").Category(apperrors.CategoryNetwork).Build()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(fmt.Errorf("diarization API status %d", resp.StatusCode)).
			Component("diarizer").Category(apperrors.CategoryNetwork).Build()
	}

	var raw []struct {
		Label     string  `json:"label"`
		StartTime float64 `json:"start_time"`
		EndTime   float64 `json:"end_time"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, apperrors.New(fmt.Errorf("decode diarization response: %w", err)).
			Component("diarizer").Category(apperrors.CategoryNetwork).Build()
	}

	segments := make([]model.SpeakerSegment, 0, len(raw))
	for _, s := range raw {
		if s.Label == "" {
			continue
		}
		segments = append(segments, model.SpeakerSegment{Speaker: s.Label, StartTime: s.StartTime, EndTime: s.EndTime})
	}
	return segments, nil
}
