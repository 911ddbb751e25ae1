package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/stackmesh/agenthub/config"
	"github.com/stackmesh/agenthub/router"
	"github.com/stackmesh/agenthub/types"
)

// backendClient proxies tool calls to the commerce capability backend. One
// client serves every tool; the policy layer above decides caching, queueing
// and timeouts.
type backendClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

func newBackendClient(cfg config.BackendConfig, logger *zap.Logger) *backendClient {
	return &backendClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "backend")),
	}
}

// handler returns the router.Handler for one tool. Backend connectivity
// failures and 5xx answers surface as CAPABILITY_UNAVAILABLE so the router
// can queue mutating calls; 4xx answers are the capability rejecting the
// call and are not retried.
func (c *backendClient) handler(tool string) router.Handler {
	url := fmt.Sprintf("%s/api/tools/%s", c.baseURL, tool)
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		body := args
		if len(body) == 0 {
			body = json.RawMessage(`{}`)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, types.NewError(types.ErrCapabilityUnavailable,
				"commerce backend unreachable").
				WithTool(tool).
				WithCause(err).
				WithRetryable(true)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, types.NewError(types.ErrCapabilityUnavailable,
				"commerce backend response truncated").
				WithTool(tool).
				WithCause(err).
				WithRetryable(true)
		}

		switch {
		case resp.StatusCode >= 500:
			return nil, types.NewError(types.ErrCapabilityUnavailable,
				fmt.Sprintf("commerce backend answered %d", resp.StatusCode)).
				WithTool(tool).
				WithRetryable(true)
		case resp.StatusCode >= 400:
			return nil, types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("commerce backend rejected the call with %d", resp.StatusCode)).
				WithTool(tool).
				WithHTTPStatus(resp.StatusCode)
		}
		return json.RawMessage(payload), nil
	}
}

// Probe checks backend liveness for the health monitor.
func (c *backendClient) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health answered %d", resp.StatusCode)
	}
	return nil
}
