package filemetrix

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/EOSC-Data-Commons/req-packager/internal/provider"
)

func TestStatic(t *testing.T) {
	s, err := NewStaticFromJSON(json.RawMessage(`{"datasets":[
		{"id":"ds-1","description":"demo","files":[{"path":"a/ref.fa","size_bytes":100},{"path":"b.csv","size_bytes":50}]},
		{"id":"partial","files":[{"path":"x","size_bytes":1}],"total_files":3,"total_size_bytes":3}
	]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	info, err := s.GetDatasetInfo(ctx, "https://demo.example.org", "ds-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := info.DeclaredFiles(); n != 2 {
		t.Errorf("expected 2 files, got %d", n)
	}
	if b, _ := info.DeclaredBytes(); b != 150 {
		t.Errorf("expected 150 bytes, got %d", b)
	}

	info, _ = s.GetDatasetInfo(ctx, "r", "partial")
	if n, _ := info.DeclaredFiles(); n != 3 {
		t.Errorf("expected declared override 3, got %d", n)
	}

	files, _ := s.ListFiles(ctx, "r", "ds-1")
	files[0].Path = "mutated"
	again, _ := s.ListFiles(ctx, "r", "ds-1")
	if again[0].Path != "a/ref.fa" {
		t.Error("listing shares state with the caller")
	}

	if _, err := s.ListFiles(ctx, "r", "nope"); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStaticRejectsMissingID(t *testing.T) {
	if _, err := NewStaticFromJSON(json.RawMessage(`{"datasets":[{"description":"x"}]}`)); err == nil {
		t.Error("expected error for dataset without id")
	}
}
