package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchBody(id, status string) map[string]any {
	return map[string]any{
		"id":                id,
		"type":              "message_batch",
		"processing_status": status,
		"request_counts": map[string]any{
			"processing": 1, "succeeded": 0, "errored": 0, "canceled": 0, "expired": 0,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestSDKClient_CreateMessage_WebSearch(t *testing.T) {
	var sent map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/messages")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &sent))

		writeJSON(w, http.StatusOK, map[string]any{
			"id":   "msg_ws",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "server_tool_use", "id": "srvtoolu_1", "name": "web_search", "input": map[string]any{"query": "dental"}},
				{
					"type": "text",
					"text": "Dental chains are consolidating.",
					"citations": []map[string]any{{
						"type":            "web_search_result_location",
						"url":             "https://example.com/report",
						"title":           "Report",
						"cited_text":      "consolidating",
						"encrypted_index": "abc",
					}},
				},
			},
			"model":       "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 120, "output_tokens": 40},
		})
	}))
	defer ts.Close()

	temp := 0.2
	client := NewClient("test-key", ts.URL)
	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:            "claude-sonnet-4-5-20250929",
		MaxTokens:        1024,
		System:           []SystemBlock{{Text: "be brief", CacheControl: &CacheControl{TTL: "1h"}}},
		Messages:         []Message{{Role: "user", Content: "find signals"}},
		Temperature:      &temp,
		WebSearchMaxUses: 3,
	})
	require.NoError(t, err)

	tools, ok := sent["tools"].([]any)
	require.True(t, ok, "tools should be sent")
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "web_search", tool["name"])
	assert.EqualValues(t, 3, tool["max_uses"])

	assert.Equal(t, "Dental chains are consolidating.", resp.Text())
	require.Len(t, resp.Content, 2)
	assert.Equal(t, []Citation{{URL: "https://example.com/report", Title: "Report"}}, resp.Content[1].Citations)
	assert.Equal(t, int64(120), resp.Usage.InputTokens)
}

func TestSDKClient_CreateMessage_NoToolsByDefault(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sent map[string]any
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &sent))
		assert.NotContains(t, sent, "tools")

		writeJSON(w, http.StatusOK, map[string]any{
			"id": "msg_1", "type": "message", "role": "assistant",
			"content":     []map[string]any{{"type": "text", "text": "ok"}},
			"model":       "claude-haiku-4-5-20251001",
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 1, "output_tokens": 1},
		})
	}))
	defer ts.Close()

	resp, err := NewClient("k", ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model: "claude-haiku-4-5-20251001", MaxTokens: 16,
		Messages: []Message{{Role: "assistant", Content: "prefill"}, {Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())
}

func TestSDKClient_RateLimitError(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("retry-after", "7")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
		})
	}))
	defer ts.Close()

	_, err := NewClient("k", ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model: "claude-haiku-4-5-20251001", MaxTokens: 16,
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "sdk retries must be disabled")
	assert.Contains(t, err.Error(), "anthropic: create message")
	assert.True(t, IsRateLimit(err))
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))

	d, ok := RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, d)
}

func TestSDKClient_ServerErrorIsNotRateLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "api_error", "message": "boom"},
		})
	}))
	defer ts.Close()

	_, err := NewClient("k", ts.URL).GetBatch(context.Background(), "batch_x")
	require.Error(t, err)
	assert.False(t, IsRateLimit(err))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	_, ok := RetryAfter(err)
	assert.False(t, ok)
}

func TestErrorHelpers_NonAPIError(t *testing.T) {
	err := io.EOF
	assert.Equal(t, 0, StatusCode(err))
	assert.False(t, IsRateLimit(err))
	_, ok := RetryAfter(err)
	assert.False(t, ok)
}

func TestSDKClient_BatchLifecycle(t *testing.T) {
	var createBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/messages/batches":
			raw, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(raw, &createBody))
			writeJSON(w, http.StatusOK, batchBody("batch_1", "in_progress"))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/messages/batches/batch_1":
			writeJSON(w, http.StatusOK, batchBody("batch_1", "in_progress"))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/messages/batches/batch_1/cancel":
			writeJSON(w, http.StatusOK, batchBody("batch_1", "canceling"))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	client := NewClient("k", ts.URL)
	ctx := context.Background()

	created, err := client.CreateBatch(ctx, BatchRequest{Requests: []BatchRequestItem{{
		CustomID: "research",
		Params: MessageRequest{
			Model: "claude-sonnet-4-5-20250929", MaxTokens: 2048,
			Messages:         []Message{{Role: "user", Content: "go"}},
			WebSearchMaxUses: 5,
		},
	}}})
	require.NoError(t, err)
	assert.Equal(t, "batch_1", created.ID)
	assert.Equal(t, BatchInProgress, created.ProcessingStatus)

	reqs := createBody["requests"].([]any)
	params := reqs[0].(map[string]any)["params"].(map[string]any)
	assert.Contains(t, params, "tools")

	got, err := client.GetBatch(ctx, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.RequestCounts.Processing)

	canceled, err := client.CancelBatch(ctx, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, BatchCanceling, canceled.ProcessingStatus)
}

func TestSDKClient_CancelBatch_Error(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "not_found_error", "message": "no batch"},
		})
	}))
	defer ts.Close()

	_, err := NewClient("k", ts.URL).CancelBatch(context.Background(), "batch_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: cancel batch batch_missing")
}

func TestSDKClient_GetBatchResults(t *testing.T) {
	lines := `{"custom_id":"research","result":{"type":"succeeded","message":{"id":"msg_r1","type":"message","role":"assistant","content":[{"type":"text","text":"signals"}],"model":"claude-sonnet-4-5-20250929","stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}}}` + "\n" +
		`{"custom_id":"other","result":{"type":"expired"}}` + "\n"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "batch_r")
		w.Header().Set("Content-Type", "application/x-jsonlines")
		_, _ = w.Write([]byte(lines))
	}))
	defer ts.Close()

	client := NewClient("k", ts.URL)
	msg, failure, err := SingleResult(context.Background(), client, "batch_r", "research")
	require.NoError(t, err)
	assert.Nil(t, failure)
	assert.Equal(t, "signals", msg.Text())
	assert.Equal(t, int64(10), msg.Usage.InputTokens)

	_, failure, err = SingleResult(context.Background(), client, "batch_r", "other")
	require.NoError(t, err)
	require.NotNil(t, failure)
	assert.Equal(t, ResultExpired, failure.Type)
}
