// Package client talks to a running dcr server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/dcr-tools/dcr/internal/render"
	"github.com/dcr-tools/dcr/internal/util"
)

var ErrUnexpectedStatus = errors.New("unexpected status")

// Client addresses one dcr instance through its base URL, e.g.
// http://localhost:28657/dcr.
type Client struct {
	baseURL string
	logger  *zap.Logger

	// client is used for requests that must not be repeated, retrying is
	// for the idempotent reads.
	client   *http.Client
	retrying *http.Client
}

func New(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger.Named("client"),
		client:   util.HTTPClient(),
		retrying: util.HTTPClientWithRetry(),
	}
}

// Health reports whether the server answers its health check with 200. A
// 503 is not an error.
func (c *Client) Health(ctx context.Context) (bool, error) {
	status, _, err := c.do(ctx, c.client, http.MethodGet, "/health", nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusServiceUnavailable:
		return false, nil
	}
	return false, fmt.Errorf("%w: health returned %d", ErrUnexpectedStatus, status)
}

// Toggle flips the server's health state and returns the server's answer.
func (c *Client) Toggle(ctx context.Context) (string, error) {
	return c.expectOK(ctx, c.client, http.MethodPut, "/health", nil)
}

func (c *Client) Version(ctx context.Context) (string, error) {
	return c.expectOK(ctx, c.retrying, http.MethodGet, "/version", nil)
}

// Log sends r to the logger endpoint.
func (c *Client) Log(ctx context.Context, r io.Reader) (string, error) {
	return c.expectOK(ctx, c.client, http.MethodPost, "/logger", r)
}

// Inspect fetches the JSON introspection document for a GET of path.
func (c *Client) Inspect(ctx context.Context, path string) (*render.Document, error) {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	body, err := c.expectOK(ctx, c.retrying, http.MethodGet, path+"?format=json", nil)
	if err != nil {
		return nil, err
	}
	var doc render.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode introspection document: %w", err)
	}
	return &doc, nil
}

func (c *Client) expectOK(ctx context.Context, hc *http.Client, method, path string, body io.Reader) (string, error) {
	status, bs, err := c.do(ctx, hc, method, path, body)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: %s %s returned %d: %s", ErrUnexpectedStatus, method, path, status, strings.TrimSpace(string(bs)))
	}
	return string(bs), nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body io.Reader) (int, []byte, error) {
	log := c.logger.Sugar()
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}

	log.Debugw("sending request", "method", method, "url", url)
	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bs, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	log.Debugw("received response", "method", method, "url", url, "status", resp.StatusCode, "bytes", len(bs))
	return resp.StatusCode, bs, nil
}
