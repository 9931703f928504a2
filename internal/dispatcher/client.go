// Package dispatcher is the HTTP client for the environment launcher.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/EOSC-Data-Commons/req-packager/internal/models"
	"github.com/EOSC-Data-Commons/req-packager/internal/provider"
)

// Client implements provider.Dispatcher over HTTP:
//
//	POST {base}/launch           LaunchRequest -> {"url_callback": "..."}
//	GET  {base}/requests?user=   -> {"requests": [RequestStatus...]}
//
// Launch blocks until the dispatcher answers; bound it with the context.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ provider.Dispatcher = (*Client)(nil)

// New creates a client for baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

type launchResponse struct {
	CallbackURL string `json:"url_callback"`
}

type requestsResponse struct {
	Requests []models.RequestStatus `json:"requests"`
}

func (c *Client) Launch(ctx context.Context, req models.LaunchRequest) (*url.URL, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode launch request: %w", err)
	}

	var out launchResponse
	if err := c.do(ctx, http.MethodPost, "/launch", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}

	u, err := url.Parse(out.CallbackURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("dispatcher returned invalid callback %q", out.CallbackURL)
	}
	return u, nil
}

func (c *Client) CheckUserRequests(ctx context.Context, userID string) ([]models.RequestStatus, error) {
	var out requestsResponse
	path := "/requests?" + url.Values{"user": {userID}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
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
		return fmt.Errorf("dispatcher %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("dispatcher %s: %w", path, provider.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dispatcher %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode dispatcher response: %w", err)
	}
	return nil
}
