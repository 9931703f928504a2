package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CATALOG_PATH", "/etc/reqpackager/catalog.yaml")
	t.Setenv("DISPATCHER_URL", "http://dispatcher:8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.ListenAddr)
	}
	if cfg.BrowseBufferSize != 16 {
		t.Errorf("expected buffer 16, got %d", cfg.BrowseBufferSize)
	}
	if cfg.ProviderTimeout != 30*time.Second {
		t.Errorf("expected 30s provider timeout, got %s", cfg.ProviderTimeout)
	}
	if !cfg.CatalogWatch {
		t.Error("expected catalog watch enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CATALOG_PATH", "catalog.yaml")
	t.Setenv("DISPATCHER_URL", "http://dispatcher:8080")
	t.Setenv("BROWSE_BUFFER_SIZE", "4")
	t.Setenv("LAUNCH_TIMEOUT", "90s")
	t.Setenv("CATALOG_WATCH", "false")
	t.Setenv("MAX_DELIVERY_FAILURES", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BrowseBufferSize != 4 {
		t.Errorf("expected buffer 4, got %d", cfg.BrowseBufferSize)
	}
	if cfg.LaunchTimeout != 90*time.Second {
		t.Errorf("expected 90s, got %s", cfg.LaunchTimeout)
	}
	if cfg.CatalogWatch {
		t.Error("expected catalog watch disabled")
	}
	if cfg.MaxDeliveryFailures != 3 {
		t.Errorf("expected fallback 3 for invalid value, got %d", cfg.MaxDeliveryFailures)
	}
}

func TestLoadRequired(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing catalog", map[string]string{"DISPATCHER_URL": "http://d"}, "CATALOG_PATH"},
		{"missing dispatcher", map[string]string{"CATALOG_PATH": "c.yaml"}, "DISPATCHER_URL"},
		{"bad buffer", map[string]string{
			"CATALOG_PATH": "c.yaml", "DISPATCHER_URL": "http://d", "BROWSE_BUFFER_SIZE": "0",
		}, "BROWSE_BUFFER_SIZE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CATALOG_PATH", "")
			t.Setenv("DISPATCHER_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}
