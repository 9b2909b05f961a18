// Package collector implements the HTTP client that uploads captured event
// batches to the remote collector endpoint.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"streamview/telemetry/internal/shared"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultImmediateTimeout = 5 * time.Second
)

// NewClient creates a collector client with a default HTTP client.
func NewClient(endpoint, apiKey string, logger Logger) *Client {
	return NewClientWithHTTPClient(endpoint, apiKey, &http.Client{Timeout: defaultTimeout}, logger)
}

// NewClientWithHTTPClient creates a collector client with a custom HTTP
// client, used by tests to inject a mock transport.
func NewClientWithHTTPClient(endpoint, apiKey string, httpClient HTTPClient, logger Logger) *Client {
	return &Client{
		endpoint:         endpoint,
		apiKey:           apiKey,
		httpClient:       httpClient,
		immediateTimeout: defaultImmediateTimeout,
		logger:           logger,
	}
}

func (c *Client) buildRequest(ctx context.Context, payload *shared.BatchPayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return req, nil
}

func (c *Client) safeFetch(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("error while trying to reach collector", map[string]interface{}{
			"url":   req.URL.String(),
			"error": err.Error(),
		})
		return nil, err
	}
	return resp, nil
}

// SendBatch delivers the payload to the collector. Any 2xx response counts
// as full-batch success; anything else is returned as a *CollectorError.
//
// An immediate send detaches from the caller's context and runs under its
// own short deadline, so an unload-time flush can finish delivery while the
// manager tears down around it.
func (c *Client) SendBatch(ctx context.Context, payload *shared.BatchPayload, immediate bool) error {
	if immediate {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), c.immediateTimeout)
		defer cancel()
	}

	req, err := c.buildRequest(ctx, payload)
	if err != nil {
		return err
	}
	if immediate {
		req.Close = true
	}

	resp, err := c.safeFetch(req)
	if err != nil {
		return fmt.Errorf("could not reach collector %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewCollectorError(resp.StatusCode)
	}

	c.logger.Debug("batch delivered to collector", map[string]interface{}{
		"events":    len(payload.Events),
		"sessionId": payload.Session.ID,
		"status":    resp.StatusCode,
	})

	return nil
}
