package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gambitnl/sessionscribe/internal/model"
	"github.com/gambitnl/sessionscribe/internal/ratelimit"
)

func TestRemoteClassifier_PreflightFlagsMissingAPIKey(t *testing.T) {
	t.Parallel()
	c := NewRemoteClassifier(Options{})
	issues := c.Preflight(context.Background())
	require.Len(t, issues, 1)
	assert.True(t, issues[0].Fatal)

	c2 := NewRemoteClassifier(Options{APIKey: "sk-test"})
	assert.Empty(t, c2.Preflight(context.Background()))
}

func TestRemoteClassifier_ClassifySegmentsSendsBearerTokenAndParsesResponse(t *testing.T) {
	t.Parallel()
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "Classificatie: OOC\nVertrouwen: 0.7"}},
			},
		})
	}))
	defer srv.Close()

	c := NewRemoteClassifier(Options{APIKey: "secret", APIURL: srv.URL})
	results, err := c.ClassifySegments(context.Background(), []model.TranscriptionSegment{{Text: "x"}}, nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.OutOfCharacter, results[0].Classification)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestRemoteClassifier_NoChoicesDefaultsToIC(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []map[string]any{}})
	}))
	defer srv.Close()

	c := NewRemoteClassifier(Options{APIKey: "secret", APIURL: srv.URL})
	c.retry = ratelimit.NewRetryPolicy(1, time.Millisecond)
	c.retry.Jitter = func() time.Duration { return 0 }

	results, err := c.ClassifySegments(context.Background(), []model.TranscriptionSegment{{Text: "x"}}, nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.InCharacter, results[0].Classification)
	assert.Equal(t, "Classification failed, defaulted to IC", results[0].Reasoning)
}

func TestRemoteClassifier_RateLimitedResponsePenalizesAndRetries(t *testing.T) {
	t.Parallel()
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "Classificatie: IC"}}},
		})
	}))
	defer srv.Close()

	c := NewRemoteClassifier(Options{APIKey: "secret", APIURL: srv.URL})
	c.retry = ratelimit.NewRetryPolicy(2, time.Millisecond)
	c.retry.Jitter = func() time.Duration { return 0 }
	c.limiter = ratelimit.New(1000, time.Minute)

	results, err := c.ClassifySegments(context.Background(), []model.TranscriptionSegment{{Text: "x"}}, nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, model.InCharacter, results[0].Classification)
}

func TestIsRateLimitStatus(t *testing.T) {
	t.Parallel()
	assert.True(t, isRateLimitStatus(http.StatusTooManyRequests, ""))
	assert.True(t, isRateLimitStatus(http.StatusOK, "Error: rate_limit exceeded"))
	assert.True(t, isRateLimitStatus(http.StatusOK, "got 429 from upstream"))
	assert.False(t, isRateLimitStatus(http.StatusOK, "all good"))
}
