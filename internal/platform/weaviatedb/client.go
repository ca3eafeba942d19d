package weaviatedb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/videograph/internal/pkg/ctxutil"
	"github.com/yungbote/videograph/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

// Client is a hand-rolled Weaviate REST/GraphQL client scoped to a single
// class. The store computes text embeddings server-side on insert; this
// client never sends vectors on write.
type Client struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

// Object is one batch-upsert row. ID must be a pre-computed deterministic
// UUID so re-upserts are idempotent.
type Object struct {
	ID         string
	Properties map[string]any
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	c := &Client{
		log:     log.With("client", "WeaviateDB"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}

	if err := c.verifyReady(context.Background()); err != nil {
		return nil, err
	}
	if err := c.ensureClass(context.Background()); err != nil {
		return nil, err
	}

	log.Info("Weaviate client ready",
		"url", c.baseURL,
		"class", cfg.Class,
	)
	return c, nil
}

// Class returns the configured class name.
func (c *Client) Class() string {
	return c.cfg.Class
}

func (c *Client) verifyReady(ctx context.Context) error {
	const op = "bootstrap_verify"
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, c.baseURL+"/v1/.well-known/ready", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "weaviate ready check failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorNotReady,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("weaviate ready check returned status=%d", resp.StatusCode),
		}
	}
	return nil
}

// ensureClass creates the segment class on first run. The class definition
// delegates embedding to the store's configured text vectorizer.
func (c *Client) ensureClass(ctx context.Context) error {
	const op = "bootstrap_schema"

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, c.baseURL+"/v1/schema/"+c.cfg.Class, nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build schema request failed", err)
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "weaviate schema check failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode != http.StatusNotFound {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("weaviate schema check returned status=%d", resp.StatusCode),
		}
	}

	c.log.Info("Creating Weaviate class", "class", c.cfg.Class)
	classDef := map[string]any{
		"class":      c.cfg.Class,
		"vectorizer": "text2vec-openai",
		"properties": []map[string]any{
			{"name": "videoId", "dataType": []string{"text"}, "tokenization": "field"},
			{"name": "text", "dataType": []string{"text"}},
			{"name": "start_s", "dataType": []string{"number"}},
			{"name": "end_s", "dataType": []string{"number"}},
			{"name": "tokens", "dataType": []string{"int"}},
		},
	}
	return c.doJSON(ctx, op, http.MethodPost, "/v1/schema", classDef, nil)
}

type batchObjectResult struct {
	ID     string `json:"id"`
	Result struct {
		Status string `json:"status"`
		Errors *struct {
			Error []struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"errors"`
	} `json:"result"`
}

// BatchUpsert inserts objects in one batch call and returns the number the
// store accepted. Per-object failures are logged, not fatal.
func (c *Client) BatchUpsert(ctx context.Context, objects []Object) (int, error) {
	const op = "batch_upsert"
	if len(objects) == 0 {
		return 0, nil
	}

	rows := make([]map[string]any, 0, len(objects))
	for _, obj := range objects {
		if strings.TrimSpace(obj.ID) == "" {
			return 0, opErr(op, OperationErrorValidation, "object id is required", nil)
		}
		rows = append(rows, map[string]any{
			"class":      c.cfg.Class,
			"id":         obj.ID,
			"properties": obj.Properties,
		})
	}

	var results []batchObjectResult
	if err := c.doJSON(ctx, op, http.MethodPost, "/v1/batch/objects", map[string]any{"objects": rows}, &results); err != nil {
		return 0, err
	}

	accepted := 0
	for _, r := range results {
		if strings.EqualFold(r.Result.Status, "FAILED") {
			msg := "unknown"
			if r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
				msg = r.Result.Errors.Error[0].Message
			}
			c.log.Warn("Weaviate rejected object", "id", r.ID, "error", msg)
			continue
		}
		accepted++
	}
	if len(results) == 0 {
		// Older servers return an empty body on success.
		accepted = len(objects)
	}
	return accepted, nil
}

type graphQLError struct {
	Message string `json:"message"`
}

// GraphQL posts a raw GraphQL query and decodes the "data" object into out.
// Server-reported query errors surface as OperationError.
func (c *Client) GraphQL(ctx context.Context, query string, out any) error {
	const op = "graphql"
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := c.doJSON(ctx, op, http.MethodPost, "/v1/graphql", map[string]any{"query": query}, &envelope); err != nil {
		return err
	}
	if len(envelope.Errors) > 0 {
		return opErr(op, OperationErrorQueryFailed, envelope.Errors[0].Message, nil)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode graphql data failed", err)
	}
	return nil
}

// DeleteByProperty batch-deletes all objects whose text property equals
// value and returns the number of matches. Idempotent.
func (c *Client) DeleteByProperty(ctx context.Context, property, value string) (int, error) {
	const op = "batch_delete"
	if strings.TrimSpace(property) == "" {
		return 0, opErr(op, OperationErrorValidation, "property is required", nil)
	}

	req := map[string]any{
		"match": map[string]any{
			"class": c.cfg.Class,
			"where": map[string]any{
				"path":      []string{property},
				"operator":  "Equal",
				"valueText": value,
			},
		},
		"output": "minimal",
	}
	var result struct {
		Results struct {
			Matches    int `json:"matches"`
			Successful int `json:"successful"`
			Failed     int `json:"failed"`
		} `json:"results"`
	}
	if err := c.doJSON(ctx, op, http.MethodDelete, "/v1/batch/objects", req, &result); err != nil {
		return 0, err
	}
	if result.Results.Failed > 0 {
		c.log.Warn("Weaviate batch delete partially failed",
			"property", property,
			"matches", result.Results.Matches,
			"failed", result.Results.Failed,
		)
	}
	return result.Results.Matches, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "weaviate request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("weaviate http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode weaviate response failed", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
