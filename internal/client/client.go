// Package client is the Go client for the request packager API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/EOSC-Data-Commons/req-packager/internal/api"
	"github.com/EOSC-Data-Commons/req-packager/internal/models"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status int
	api.ErrorResponse
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.Status, e.ErrorResponse.Error)
	if e.Code != "" {
		msg += " (" + string(e.Code) + ")"
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// AsAPIError extracts an *APIError from err.
func AsAPIError(err error) (*APIError, bool) {
	var e *APIError
	ok := errors.As(err, &e)
	return e, ok
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	// Timeout applies to unary calls; browse streams are bounded by ctx only.
	Timeout time.Duration
}

// Client talks to one service instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		timeout: cfg.Timeout,
	}
}

// Assemble submits a tool id and file selection.
func (c *Client) Assemble(ctx context.Context, vreID string, files []models.FileEntry) (*models.VreEntry, error) {
	body, err := json.Marshal(api.PackageRequest{VreID: vreID, FileEntries: files})
	if err != nil {
		return nil, err
	}
	var resp api.PackageResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/packages", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return resp.VreEntry, nil
}

// Tools lists the tool registry.
func (c *Client) Tools(ctx context.Context) ([]models.ToolDescriptor, error) {
	var resp api.ToolsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/tools", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

// Requests lists a user's launch requests.
func (c *Client) Requests(ctx context.Context, userID string) ([]models.RequestStatus, error) {
	var resp api.RequestsResponse
	path := "/api/v1/requests?" + url.Values{"user": {userID}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Requests, nil
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var resp api.HealthResponse
	return c.do(ctx, http.MethodGet, "/health", nil, &resp)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	e := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &e.ErrorResponse); err != nil || e.ErrorResponse.Error == "" {
		e.ErrorResponse.Error = strings.TrimSpace(string(data))
	}
	return e
}
