package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/EOSC-Data-Commons/req-packager/internal/models"
)

// ErrStreamTruncated is returned when a browse stream closes before a
// terminal event.
var ErrStreamTruncated = errors.New("browse stream closed before a terminal event")

// Browse streams a dataset's browse events to fn in order. It returns nil
// after a Complete event, a *models.Error built from a fatal error event,
// or fn's error, which stops the stream.
func (c *Client) Browse(ctx context.Context, repoURL, datasetID string, fn func(models.BrowseEvent) error) error {
	q := url.Values{"repo": {repoURL}, "dataset": {datasetID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/datasets/browse?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	var data string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data == "" {
				continue
			}
			var ev models.BrowseEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			data = ""

			if err := fn(ev); err != nil {
				return err
			}
			switch {
			case ev.Kind == models.EventComplete:
				return nil
			case ev.Terminal():
				return &models.Error{Code: ev.Error.Code, Message: ev.Error.Message, Path: ev.Error.Path}
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return ErrStreamTruncated
}
