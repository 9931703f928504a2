package assemble

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/EOSC-Data-Commons/req-packager/internal/logging"
	"github.com/EOSC-Data-Commons/req-packager/internal/models"
	"github.com/EOSC-Data-Commons/req-packager/internal/provider"
)

func init() {
	logging.InitNop()
}

type fakeRegistry map[string]models.VirtualResearchEnv

func (r fakeRegistry) GetTool(_ context.Context, id string) (models.VirtualResearchEnv, error) {
	t, ok := r[id]
	if !ok {
		return nil, fmt.Errorf("tool %s: %w", id, provider.ErrNotFound)
	}
	return t, nil
}

func (r fakeRegistry) ListTools(context.Context) ([]models.VirtualResearchEnv, error) {
	out := make([]models.VirtualResearchEnv, 0, len(r))
	for _, t := range r {
		out = append(out, t)
	}
	return out, nil
}

type fakeDispatcher struct {
	launches atomic.Int32
	last     models.LaunchRequest
	err      error
}

func (d *fakeDispatcher) Launch(_ context.Context, req models.LaunchRequest) (*url.URL, error) {
	d.launches.Add(1)
	d.last = req
	if d.err != nil {
		return nil, d.err
	}
	return url.Parse("https://galaxy.example.org/session/42")
}

func (d *fakeDispatcher) CheckUserRequests(context.Context, string) ([]models.RequestStatus, error) {
	return nil, nil
}

func registry() fakeRegistry {
	return fakeRegistry{
		"jupyter":  models.EoscInline{ID: "jupyter", Version: "0.1.0"},
		"galaxy":   models.Hosted{ID: "galaxy", Version: "24.1", Requirements: []string{"ref.fa"}},
		"pipeline": models.Hosted{ID: "pipeline", Version: "1", Requirements: []string{"ref.fa", "reads.fq", "ref.fa"}},
		"viewer":   models.BrowserNative{ID: "viewer", Files: []string{"a.png"}},
		"cluster":  models.HostedProvisioned{ID: "cluster", Resources: models.Resources{CPUs: 4}},
	}
}

func TestAssembleInline(t *testing.T) {
	d := &fakeDispatcher{}
	a := New(registry(), d, Options{})
	file := models.FileEntry{Path: "data/notebook.ipynb", SizeBytes: 1024}

	got, err := a.Assemble(context.Background(), "jupyter", []models.FileEntry{file})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &models.VreEntry{
		VreID:   "jupyter",
		Version: "0.1.0",
		EntryPoint: models.EntryPoint{
			Kind:       models.EntryEoscInline,
			EoscInline: &models.InlineEntry{CallbackURL: DefaultCallbackURL, FileEntry: file},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
	if n := d.launches.Load(); n != 0 {
		t.Errorf("inline tool must not launch, got %d calls", n)
	}
}

func TestAssembleInlineWrongCount(t *testing.T) {
	for _, n := range []int{0, 2, 5} {
		t.Run(fmt.Sprintf("%d files", n), func(t *testing.T) {
			d := &fakeDispatcher{}
			a := New(registry(), d, Options{})
			files := make([]models.FileEntry, n)
			for i := range files {
				files[i] = models.FileEntry{Path: fmt.Sprintf("f%d", i)}
			}

			entry, err := a.Assemble(context.Background(), "jupyter", files)
			if entry != nil {
				t.Fatalf("expected no entry, got %+v", entry)
			}
			if models.CodeOf(err) != models.CodeValidationFailed {
				t.Fatalf("expected validation_failed, got %v", err)
			}
			var e *models.Error
			errors.As(err, &e)
			if want := fmt.Sprintf("inline tool only processes one file, got: %d", n); e.Message != want {
				t.Errorf("expected message %q, got %q", want, e.Message)
			}
			if d.launches.Load() != 0 {
				t.Error("launch must not be called")
			}
		})
	}
}

func TestAssembleHosted(t *testing.T) {
	d := &fakeDispatcher{}
	a := New(registry(), d, Options{})
	files := []models.FileEntry{
		{Path: "genomes/hg38/ref.fa", SizeBytes: 3000},
		{Path: "reads/sample.fq", SizeBytes: 500},
	}

	got, err := a.Assemble(context.Background(), "galaxy", files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := d.launches.Load(); n != 1 {
		t.Fatalf("expected exactly one launch, got %d", n)
	}
	if diff := cmp.Diff(models.LaunchRequest{VreID: "galaxy", Files: files}, d.last); diff != "" {
		t.Errorf("launch request mismatch (-want +got):\n%s", diff)
	}
	want := &models.VreEntry{
		VreID:   "galaxy",
		Version: "24.1",
		EntryPoint: models.EntryPoint{
			Kind:   models.EntryHosted,
			Hosted: &models.HostedEntry{CallbackURL: "https://galaxy.example.org/session/42"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleHostedMissingRequirement(t *testing.T) {
	d := &fakeDispatcher{}
	a := New(registry(), d, Options{})

	_, err := a.Assemble(context.Background(), "pipeline", []models.FileEntry{{Path: "ref.fa.bak"}, {Path: "x/reads.fq"}})
	if models.CodeOf(err) != models.CodeValidationFailed {
		t.Fatalf("expected validation_failed, got %v", err)
	}
	if d.launches.Load() != 0 {
		t.Error("launch must not be called when requirements are unmet")
	}
}

func TestAssembleHostedDispatcherFailure(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("no capacity")}
	a := New(registry(), d, Options{})

	entry, err := a.Assemble(context.Background(), "galaxy", []models.FileEntry{{Path: "ref.fa"}})
	if entry != nil {
		t.Fatalf("expected no entry, got %+v", entry)
	}
	if models.CodeOf(err) != models.CodeDispatcherUnavailable {
		t.Fatalf("expected dispatcher_unavailable, got %v", err)
	}
	if d.launches.Load() != 1 {
		t.Errorf("expected one launch attempt, got %d", d.launches.Load())
	}
}

func TestAssembleUnsupportedVariants(t *testing.T) {
	for _, id := range []string{"viewer", "cluster"} {
		t.Run(id, func(t *testing.T) {
			d := &fakeDispatcher{}
			_, err := New(registry(), d, Options{}).Assemble(context.Background(), id, []models.FileEntry{{Path: "a.png"}})
			if models.CodeOf(err) != models.CodeUnsupportedVreVariant {
				t.Fatalf("expected unsupported_vre_variant, got %v", err)
			}
			if d.launches.Load() != 0 {
				t.Error("launch must not be called")
			}
		})
	}
}

func TestAssembleUnknownTool(t *testing.T) {
	_, err := New(registry(), &fakeDispatcher{}, Options{}).Assemble(context.Background(), "nope", nil)
	if models.CodeOf(err) != models.CodeToolResolutionFailed {
		t.Fatalf("expected tool_resolution_failed, got %v", err)
	}
	if !errors.Is(err, provider.ErrNotFound) {
		t.Error("expected ErrNotFound in the chain")
	}
}

func TestUnmet(t *testing.T) {
	tests := []struct {
		name  string
		reqs  []string
		paths []string
		want  []string
	}{
		{"all met", []string{"ref.fa"}, []string{"a/b/ref.fa"}, nil},
		{"none required", nil, []string{"x"}, nil},
		{"suffix is not a basename", []string{"ref.fa"}, []string{"myref.fa"}, []string{"ref.fa"}},
		{"ordered and deduplicated", []string{"b", "a", "b"}, []string{"c"}, []string{"b", "a"}},
		{"partial", []string{"ref.fa", "reads.fq"}, []string{"ref.fa"}, []string{"reads.fq"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := make([]models.FileEntry, len(tt.paths))
			for i, p := range tt.paths {
				files[i] = models.FileEntry{Path: p}
			}
			if diff := cmp.Diff(tt.want, Unmet(tt.reqs, files)); diff != "" {
				t.Errorf("Unmet mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
