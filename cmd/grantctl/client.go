package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	chiTransport "github.com/kailas-cloud/grantmatch/internal/transport/chi"
)

// apiClient talks to the grantmatch HTTP API.
type apiClient struct {
	base     string
	adminKey string
	http     *http.Client
}

func newAPIClient(base, adminKey string, timeout time.Duration) *apiClient {
	return &apiClient{
		base:     strings.TrimRight(base, "/"),
		adminKey: adminKey,
		http:     &http.Client{Timeout: timeout},
	}
}

// apiError is a non-2xx answer of the API.
type apiError struct {
	Status     int
	RetryAfter string
	Body       chiTransport.ErrorResponse
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("%d %s: %s", e.Status, e.Body.Code, e.Body.Message)
	if e.Body.Field != "" {
		msg += " (field " + e.Body.Field + ")"
	}
	if e.RetryAfter != "" {
		msg += ", retry after " + e.RetryAfter + "s"
	}
	return msg
}

func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest && !(path == "/health" && resp.StatusCode == http.StatusServiceUnavailable) {
		apiErr := &apiError{Status: resp.StatusCode, RetryAfter: resp.Header.Get("Retry-After")}
		if jerr := json.Unmarshal(data, &apiErr.Body); jerr != nil {
			apiErr.Body.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
