package weaviatedb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	pkgerrors "github.com/yungbote/videograph/internal/pkg/errors"
	"github.com/yungbote/videograph/internal/platform/logger"
)

func TestBatchUpsertRequestShapeAndCount(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/v1/batch/objects" {
			t.Fatalf("path: want=%q got=%q", "/v1/batch/objects", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(t, http.StatusOK, []map[string]any{
			{"id": "id-1", "result": map[string]any{"status": "SUCCESS"}},
			{"id": "id-2", "result": map[string]any{
				"status": "FAILED",
				"errors": map[string]any{"error": []map[string]any{{"message": "boom"}}},
			}},
		}), nil
	})

	accepted, err := c.BatchUpsert(context.Background(), []Object{
		{ID: "id-1", Properties: map[string]any{"videoId": "v1", "text": "a"}},
		{ID: "id-2", Properties: map[string]any{"videoId": "v1", "text": "b"}},
	})
	if err != nil {
		t.Fatalf("BatchUpsert: %v", err)
	}
	if accepted != 1 {
		t.Fatalf("accepted: want=1 got=%d", accepted)
	}

	rows, ok := captured["objects"].([]any)
	if !ok || len(rows) != 2 {
		t.Fatalf("objects payload: got=%v", captured["objects"])
	}
	first, ok := rows[0].(map[string]any)
	if !ok {
		t.Fatalf("row type: got=%T", rows[0])
	}
	if first["class"] != "Segment" {
		t.Fatalf("row class: want=Segment got=%v", first["class"])
	}
	if first["id"] != "id-1" {
		t.Fatalf("row id: got=%v", first["id"])
	}
}

func TestBatchUpsertRejectsMissingID(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request for invalid input")
		return nil, nil
	})
	_, err := c.BatchUpsert(context.Background(), []Object{{ID: " "}})
	var opError *OperationError
	if !errors.As(err, &opError) || opError.Code != OperationErrorValidation {
		t.Fatalf("want validation error, got %v", err)
	}
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("validation error should match ErrInvalidArgument: %v", err)
	}
}

func TestVerifyReadyMapsToNotReadySentinel(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusServiceUnavailable, map[string]any{}), nil
	})
	err := c.verifyReady(context.Background())
	var opError *OperationError
	if !errors.As(err, &opError) || opError.Code != OperationErrorNotReady {
		t.Fatalf("want not_ready error, got %v", err)
	}
	if !errors.Is(err, pkgerrors.ErrNotReady) {
		t.Fatalf("readiness error should match ErrNotReady: %v", err)
	}
}

func TestGraphQLDecodesDataAndSurfacesErrors(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/graphql" {
			t.Fatalf("path: want=%q got=%q", "/v1/graphql", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["query"] == "" {
			t.Fatalf("missing query")
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"data": map[string]any{
				"Get": map[string]any{
					"Segment": []map[string]any{{"videoId": "v1"}},
				},
			},
		}), nil
	})

	var out struct {
		Get map[string][]map[string]any `json:"Get"`
	}
	if err := c.GraphQL(context.Background(), "{ Get { Segment { videoId } } }", &out); err != nil {
		t.Fatalf("GraphQL: %v", err)
	}
	if len(out.Get["Segment"]) != 1 {
		t.Fatalf("decoded rows: got=%v", out.Get)
	}

	failing := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{
			"errors": []map[string]any{{"message": "cannot query field"}},
		}), nil
	})
	err := failing.GraphQL(context.Background(), "{ bad }", nil)
	var opError *OperationError
	if !errors.As(err, &opError) || opError.Code != OperationErrorQueryFailed {
		t.Fatalf("want query_failed, got %v", err)
	}
}

func TestDeleteByPropertyCountsMatches(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodDelete {
			t.Fatalf("method: want=%s got=%s", http.MethodDelete, r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"results": map[string]any{"matches": 7, "successful": 7, "failed": 0},
		}), nil
	})

	deleted, err := c.DeleteByProperty(context.Background(), "videoId", "v1")
	if err != nil {
		t.Fatalf("DeleteByProperty: %v", err)
	}
	if deleted != 7 {
		t.Fatalf("deleted: want=7 got=%d", deleted)
	}

	match, ok := captured["match"].(map[string]any)
	if !ok {
		t.Fatalf("match payload: got=%T", captured["match"])
	}
	where, ok := match["where"].(map[string]any)
	if !ok || where["valueText"] != "v1" {
		t.Fatalf("where payload: got=%v", match["where"])
	}
}

func TestDoJSONHTTPErrorStatus(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusInternalServerError, map[string]any{"error": "broken"}), nil
	})
	_, err := c.DeleteByProperty(context.Background(), "videoId", "v1")
	var opError *OperationError
	if !errors.As(err, &opError) {
		t.Fatalf("want OperationError, got %T", err)
	}
	if opError.StatusCode != http.StatusInternalServerError || opError.Code != OperationErrorQueryFailed {
		t.Fatalf("error fields: code=%s status=%d", opError.Code, opError.StatusCode)
	}
}

func TestClassifyHTTPCallErrorTimeout(t *testing.T) {
	err := classifyHTTPCallError("graphql", "timeout", context.DeadlineExceeded)
	var opError *OperationError
	if !errors.As(err, &opError) || opError.Code != OperationErrorTimeout {
		t.Fatalf("want timeout classification, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(Config{Class: "Segment"}); err == nil {
		t.Fatalf("want missing_url error")
	}
	if err := ValidateConfig(Config{URL: "::bad::", Class: "Segment"}); err == nil {
		t.Fatalf("want invalid_url error")
	}
	if err := ValidateConfig(Config{URL: "http://weaviate:8080"}); err == nil {
		t.Fatalf("want missing_class error")
	}
	if err := ValidateConfig(Config{URL: "http://weaviate:8080", Class: "Segment"}); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func newTestClient(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *Client {
	t.Helper()
	return &Client{
		log:     newTestLogger(t),
		cfg:     Config{URL: "http://weaviate.local", Class: "Segment"},
		baseURL: "http://weaviate.local",
		http: &http.Client{
			Transport: roundTripFunc(roundTrip),
		},
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
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
