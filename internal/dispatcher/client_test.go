package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/EOSC-Data-Commons/req-packager/internal/models"
)

func TestLaunch(t *testing.T) {
	var got models.LaunchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/launch" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"url_callback": "https://galaxy.example.org/s/1"})
	}))
	defer srv.Close()

	req := models.LaunchRequest{VreID: "galaxy", Files: []models.FileEntry{{Path: "ref.fa", SizeBytes: 3}}}
	u, err := New(srv.URL).Launch(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.String() != "https://galaxy.example.org/s/1" {
		t.Errorf("unexpected callback %s", u)
	}
	if diff := cmp.Diff(req, got); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestLaunchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no capacity", http.StatusServiceUnavailable)
		}},
		{"relative callback", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"url_callback":"/relative"}`))
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			if _, err := New(srv.URL).Launch(context.Background(), models.LaunchRequest{VreID: "x"}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLaunchHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := New(srv.URL).Launch(ctx, models.LaunchRequest{VreID: "x"}); err == nil {
		t.Fatal("expected deadline error")
	}
}

func TestCheckUserRequests(t *testing.T) {
	updated := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/requests" || r.URL.Query().Get("user") != "alice@example.org" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"requests": []models.RequestStatus{
			{RequestID: "r1", VreID: "galaxy", State: "running", CallbackURL: "https://g/1", UpdatedAt: updated},
		}})
	}))
	defer srv.Close()

	got, err := New(srv.URL + "/").CheckUserRequests(context.Background(), "alice@example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []models.RequestStatus{{RequestID: "r1", VreID: "galaxy", State: "running", CallbackURL: "https://g/1", UpdatedAt: updated}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}
}
