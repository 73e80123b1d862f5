package perplexity

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}],"usage":{}}`

func TestChatCompletion(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       string
		wantID        string
		wantTokens    int
		wantCitations []string
	}{
		{
			name:   "success with citations",
			status: http.StatusOK,
			body: `{
				"id": "cmpl-123",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "Demand is rising."}}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 5},
				"citations": ["https://example.com/a", "https://example.com/b"]
			}`,
			wantID:        "cmpl-123",
			wantTokens:    5,
			wantCitations: []string{"https://example.com/a", "https://example.com/b"},
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `{"error": "internal server error"}`,
			wantErr: "unexpected status 500",
		},
		{
			name:    "malformed response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))
			resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
				Messages: []Message{{Role: "user", Content: "Hi"}},
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, resp)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, resp.ID)
			assert.Equal(t, "Demand is rising.", resp.Content())
			assert.Equal(t, tt.wantTokens, resp.Usage.CompletionTokens)
			assert.Equal(t, tt.wantCitations, resp.Citations)
		})
	}
}

func TestChatCompletion_RateLimitIsSingleAttempt(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.Header().Set("Retry-After", "4")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "test"}},
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
	assert.True(t, IsRateLimit(err))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 4*time.Second, se.RetryAfter)
}

func TestChatCompletion_RequestBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "sonar", body["model"])
		assert.Equal(t, "month", body["search_recency_filter"])
		assert.InDelta(t, 0.2, body["temperature"], 0.001)
		assert.NotContains(t, body, "max_tokens")

		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	temp := 0.2
	client := NewClient("k", WithBaseURL(srv.URL+"/"), WithModel("sonar"))
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages:            []Message{{Role: "user", Content: "test"}},
		Temperature:         &temp,
		SearchRecencyFilter: "month",
	})
	require.NoError(t, err)
}

func TestChatCompletion_RequestModelOverridesDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sonar-reasoning", req.Model)
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{
		Model:    "sonar-reasoning",
		Messages: []Message{{Role: "user", Content: "test"}},
	})
	require.NoError(t, err)
}

func TestChatCompletion_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(ctx, ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "test"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	hc := NewClient("my-key", WithBaseURL(""), WithModel("")).(*httpClient)
	assert.Equal(t, defaultBaseURL, hc.baseURL)
	assert.Equal(t, defaultModel, hc.model)
	assert.NotNil(t, hc.http.Transport)

	custom := &http.Client{}
	hc = NewClient("k", WithHTTPClient(custom)).(*httpClient)
	assert.Same(t, custom, hc.http)
}

func TestContent_Empty(t *testing.T) {
	var resp *ChatCompletionResponse
	assert.Empty(t, resp.Content())
	assert.Empty(t, (&ChatCompletionResponse{}).Content())
}
