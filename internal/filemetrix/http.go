package filemetrix

import (
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

// HTTPConfig is the JSON config of an http backend.
type HTTPConfig struct {
	BaseURL string `json:"base_url"`
}

// HTTPClient talks to a filemetrix service:
//
//	GET {base}/datasets/info?repo=<url>&id=<id>   -> DatasetInfo
//	GET {base}/datasets/files?repo=<url>&id=<id>  -> {"files": [FileEntry...]}
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for baseURL. Deadlines come from the
// caller's context.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// NewHTTPClientFromJSON creates an HTTPClient from raw JSON config.
func NewHTTPClientFromJSON(raw json.RawMessage) (*HTTPClient, error) {
	var cfg HTTPConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse http config: %w", err)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base_url %q: %w", cfg.BaseURL, err)
	}
	return NewHTTPClient(cfg.BaseURL), nil
}

type filesResponse struct {
	Files []models.FileEntry `json:"files"`
}

func (c *HTTPClient) GetDatasetInfo(ctx context.Context, repoURL, datasetID string) (*models.DatasetInfo, error) {
	var info models.DatasetInfo
	if err := c.get(ctx, "/datasets/info", repoURL, datasetID, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *HTTPClient) ListFiles(ctx context.Context, repoURL, datasetID string) ([]models.FileEntry, error) {
	var resp filesResponse
	if err := c.get(ctx, "/datasets/files", repoURL, datasetID, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

func (c *HTTPClient) get(ctx context.Context, path, repoURL, datasetID string, out any) error {
	q := url.Values{"repo": {repoURL}, "id": {datasetID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("filemetrix %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("dataset %s in %s: %w", datasetID, repoURL, provider.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("filemetrix %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
