package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/yungbote/videograph/internal/platform/logger"
)

func TestChatJSONRequestShape(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path: want=%q got=%q", "/v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("authorization: got=%q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"concepts": []}`}, "finish_reason": "stop"},
			},
		}), nil
	})

	out, err := c.ChatJSON(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("ChatJSON: %v", err)
	}
	if out != `{"concepts": []}` {
		t.Fatalf("content: got=%q", out)
	}
	if captured["model"] != "test-model" {
		t.Fatalf("model: got=%v", captured["model"])
	}
	messages, ok := captured["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("messages: got=%v", captured["messages"])
	}
}

func TestChatJSONReasoningContentFallback(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"content":           "",
					"reasoning_content": `{"concepts": [{"name": "x"}]}`,
				}},
			},
		}), nil
	})
	out, err := c.ChatJSON(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("ChatJSON: %v", err)
	}
	if out != `{"concepts": [{"name": "x"}]}` {
		t.Fatalf("fallback content: got=%q", out)
	}
}

func TestChatJSONEmptyContentFails(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": ""}, "finish_reason": "length"},
			},
		}), nil
	})
	if _, err := c.ChatJSON(context.Background(), "s", "u"); err == nil {
		t.Fatalf("expected error for empty content")
	}
}

func TestChatJSONRetriesOn429(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponse(t, http.StatusTooManyRequests, map[string]any{"error": "rate limited"}), nil
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok response"}},
			},
		}), nil
	})
	out, err := c.ChatJSON(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("ChatJSON after retry: %v", err)
	}
	if out != "ok response" || calls != 2 {
		t.Fatalf("retry behavior: out=%q calls=%d", out, calls)
	}
}

func TestChatJSONDoesNotRetryOn400(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(t, http.StatusBadRequest, map[string]any{"error": "bad request"}), nil
	})
	if _, err := c.ChatJSON(context.Background(), "s", "u"); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("path: want=%q got=%q", "/v1/embeddings", r.URL.Path)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float64{3, 4}},
				{"index": 0, "embedding": []float64{1, 2}},
			},
		}), nil
	})
	out, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != 2 || out[0][0] != 1 || out[1][0] != 3 {
		t.Fatalf("ordering: got=%v", out)
	}
}

func TestEmbedMissingIndexFails(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float64{1, 2}},
			},
		}), nil
	})
	if _, err := c.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatalf("expected missing-index error")
	}
}

func newTestClient(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *client {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return &client{
		log:        log,
		baseURL:    "http://llm.local",
		apiKey:     "test-key",
		model:      "test-model",
		embedModel: "test-embed",
		maxTokens:  100,
		maxRetries: 2,
		httpClient: &http.Client{Transport: roundTripFunc(roundTrip)},
	}
}

func jsonResponse(t *testing.T, status int, payload any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
