// Package catalog loads the tool and repository snapshot the service runs
// against. A Snapshot is never modified after Parse returns it; a reload
// produces a new one.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/EOSC-Data-Commons/req-packager/internal/models"
)

// Snapshot is one parsed catalog file.
type Snapshot struct {
	Source   string
	LoadedAt time.Time

	tools        map[string]models.VirtualResearchEnv
	order        []string
	repositories []Repository
}

// Repository routes a repository URL to a filemetrix backend.
type Repository struct {
	URL     string
	Backend string
	// Config is the backend's settings re-encoded as JSON for the
	// backend factory.
	Config json.RawMessage
}

type fileTool struct {
	ID           string            `yaml:"id"`
	Kind         models.VreKind    `yaml:"kind"`
	Version      string            `yaml:"version"`
	Requirements []string          `yaml:"requirements"`
	Files        []string          `yaml:"files"`
	Config       map[string]any    `yaml:"config"`
	Resources    *models.Resources `yaml:"resources"`
}

type fileRepository struct {
	URL     string         `yaml:"url"`
	Backend string         `yaml:"backend"`
	Config  map[string]any `yaml:"config"`
}

type fileFormat struct {
	Tools        []fileTool       `yaml:"tools"`
	Repositories []fileRepository `yaml:"repositories"`
}

// Load reads and parses the catalog at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	snap, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	snap.Source = path
	return snap, nil
}

// Parse decodes and validates a catalog document. Every problem found is
// reported, not just the first.
func Parse(data []byte) (*Snapshot, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	snap := &Snapshot{
		LoadedAt: time.Now(),
		tools:    make(map[string]models.VirtualResearchEnv, len(doc.Tools)),
	}
	var errs []error

	for i, t := range doc.Tools {
		if t.ID == "" {
			errs = append(errs, fmt.Errorf("tools[%d]: missing id", i))
			continue
		}
		if _, dup := snap.tools[t.ID]; dup {
			errs = append(errs, fmt.Errorf("tools[%d]: duplicate id %q", i, t.ID))
			continue
		}
		vre, err := t.descriptor()
		if err != nil {
			errs = append(errs, fmt.Errorf("tools[%d] %q: %w", i, t.ID, err))
			continue
		}
		snap.tools[t.ID] = vre
		snap.order = append(snap.order, t.ID)
	}

	seen := make(map[string]bool, len(doc.Repositories))
	for i, r := range doc.Repositories {
		key := NormalizeURL(r.URL)
		switch {
		case key == "":
			errs = append(errs, fmt.Errorf("repositories[%d]: missing url", i))
			continue
		case seen[key]:
			errs = append(errs, fmt.Errorf("repositories[%d]: duplicate url %q", i, r.URL))
			continue
		case r.Backend == "":
			errs = append(errs, fmt.Errorf("repositories[%d] %q: missing backend", i, r.URL))
			continue
		}
		seen[key] = true

		cfg, err := json.Marshal(r.Config)
		if err != nil {
			errs = append(errs, fmt.Errorf("repositories[%d] %q: config: %w", i, r.URL, err))
			continue
		}
		snap.repositories = append(snap.repositories, Repository{URL: r.URL, Backend: r.Backend, Config: cfg})
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return snap, nil
}

// NormalizeURL is the form repository URLs are compared in: surrounding
// space and trailing slashes are ignored.
func NormalizeURL(repoURL string) string {
	return strings.TrimRight(strings.TrimSpace(repoURL), "/")
}

func (t fileTool) descriptor() (models.VirtualResearchEnv, error) {
	switch t.Kind {
	case models.VreEoscInline:
		return models.EoscInline{ID: t.ID, Version: t.Version}, nil
	case models.VreBrowserNative:
		return models.BrowserNative{ID: t.ID, Files: t.Files}, nil
	case models.VreHosted:
		return models.Hosted{ID: t.ID, Version: t.Version, Requirements: t.Requirements}, nil
	case models.VreHostedProvisioned:
		v := models.HostedProvisioned{ID: t.ID, Config: t.Config, Files: t.Files}
		if t.Resources != nil {
			v.Resources = *t.Resources
		}
		return v, nil
	case "":
		return nil, errors.New("missing kind")
	default:
		return nil, fmt.Errorf("unknown kind %q", t.Kind)
	}
}

// Tool returns the descriptor registered under id.
func (s *Snapshot) Tool(id string) (models.VirtualResearchEnv, bool) {
	t, ok := s.tools[id]
	return t, ok
}

// Tools returns every descriptor in file order.
func (s *Snapshot) Tools() []models.VirtualResearchEnv {
	out := make([]models.VirtualResearchEnv, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tools[id])
	}
	return out
}

// Repositories returns the repository routes sorted by URL.
func (s *Snapshot) Repositories() []Repository {
	out := append([]Repository(nil), s.repositories...)
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}
