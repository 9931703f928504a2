package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EOSC-Data-Commons/req-packager/internal/api"
	"github.com/EOSC-Data-Commons/req-packager/internal/models"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	return New(Config{BaseURL: ts.URL}), ts
}

func writeEvent(w http.ResponseWriter, ev models.BrowseEvent) {
	data, _ := json.Marshal(ev)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
}

func TestBrowse(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("dataset") != "ds-1" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		writeEvent(w, models.BrowseEvent{Phase: models.PhaseBrowsing, Kind: models.EventFileEntry, FileEntry: &models.FileEntry{Path: "a", SizeBytes: 1}})
		writeEvent(w, models.BrowseEvent{Phase: models.PhaseCompleted, Kind: models.EventComplete, Complete: &models.Complete{TotalFiles: 1, TotalSizeBytes: 1, Success: true}})
		writeEvent(w, models.BrowseEvent{Kind: models.EventProgress, Progress: &models.Progress{}})
	}))
	defer ts.Close()

	var kinds []models.EventKind
	err := c.Browse(context.Background(), "r", "ds-1", func(ev models.BrowseEvent) error {
		kinds = append(kinds, ev.Kind)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kinds) != 2 || kinds[1] != models.EventComplete {
		t.Errorf("expected to stop at complete, got %v", kinds)
	}
}

func TestBrowseFatalError(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, models.BrowseEvent{Phase: models.PhaseInit, Kind: models.EventError, Error: &models.BrowseError{
			Code: models.CodeProviderUnavailable, Message: "unable to get dataset info", Fatal: true,
		}})
	}))
	defer ts.Close()

	err := c.Browse(context.Background(), "r", "d", func(models.BrowseEvent) error { return nil })
	if models.CodeOf(err) != models.CodeProviderUnavailable {
		t.Fatalf("expected provider_unavailable, got %v", err)
	}
}

func TestBrowseTruncated(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, models.BrowseEvent{Kind: models.EventProgress, Progress: &models.Progress{}})
	}))
	defer ts.Close()

	err := c.Browse(context.Background(), "r", "d", func(models.BrowseEvent) error { return nil })
	if !errors.Is(err, ErrStreamTruncated) {
		t.Fatalf("expected ErrStreamTruncated, got %v", err)
	}
}

func TestAssembleAPIError(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(api.ErrorResponse{
			Error: "inline tool only processes one file, got: 2",
			Code:  models.CodeValidationFailed,
		})
	}))
	defer ts.Close()

	_, err := c.Assemble(context.Background(), "viewer", []models.FileEntry{{Path: "a"}, {Path: "b"}})
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity || apiErr.Code != models.CodeValidationFailed {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestAssemble(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.PackageRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(api.PackageResponse{VreEntry: &models.VreEntry{
			VreID: req.VreID,
			EntryPoint: models.EntryPoint{
				Kind:       models.EntryEoscInline,
				EoscInline: &models.InlineEntry{CallbackURL: "https://example.com", FileEntry: req.FileEntries[0]},
			},
		}})
	}))
	defer ts.Close()

	entry, err := c.Assemble(context.Background(), "viewer", []models.FileEntry{{Path: "a.ipynb"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.EntryPoint.EoscInline.FileEntry.Path != "a.ipynb" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestNonJSONError(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := c.Tools(context.Background())
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Status != http.StatusBadGateway || apiErr.ErrorResponse.Error != "bad gateway" {
		t.Fatalf("unexpected error: %v", err)
	}
}
