// Package filemetrix provides Filemetrix implementations and routes each
// repository URL to the one configured for it.
package filemetrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/EOSC-Data-Commons/req-packager/internal/catalog"
	"github.com/EOSC-Data-Commons/req-packager/internal/logging"
	"github.com/EOSC-Data-Commons/req-packager/internal/models"
	"github.com/EOSC-Data-Commons/req-packager/internal/provider"
)

// ErrNoBackend is returned for a repository with no route and no fallback.
var ErrNoBackend = errors.New("no filemetrix backend for repository")

type route struct {
	catalog.Repository
	backend provider.Filemetrix
}

// Router implements provider.Filemetrix by delegating to a per-repository
// backend, or to the fallback for repositories the catalog does not list.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]*route // normalized repo URL -> route
	fallback provider.Filemetrix

	newBackend func(ctx context.Context, backendType string, config json.RawMessage) (provider.Filemetrix, error)
}

var _ provider.Filemetrix = (*Router)(nil)

// NewRouter creates an empty Router. fallback may be nil.
func NewRouter(fallback provider.Filemetrix) *Router {
	return &Router{
		routes:     make(map[string]*route),
		fallback:   fallback,
		newBackend: NewBackendFromConfig,
	}
}

// Reload rebuilds the routing table from repos. Backends whose settings
// did not change are kept. A repository whose backend fails to build is
// left out and reported in the returned error; the rest are still
// installed.
func (r *Router) Reload(ctx context.Context, repos []catalog.Repository) error {
	next := make(map[string]*route, len(repos))
	var errs []error

	for _, repo := range repos {
		key := catalog.NormalizeURL(repo.URL)

		r.mu.RLock()
		existing := r.routes[key]
		r.mu.RUnlock()

		if existing != nil && existing.Backend == repo.Backend && bytes.Equal(existing.Config, repo.Config) {
			next[key] = existing
			continue
		}

		backend, err := r.newBackend(ctx, repo.Backend, repo.Config)
		if err != nil {
			logging.Error("failed to initialize filemetrix backend",
				zap.String("repo_url", repo.URL),
				zap.String("backend", repo.Backend),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("repository %s: %w", repo.URL, err))
			continue
		}
		next[key] = &route{Repository: repo, backend: backend}
	}

	r.mu.Lock()
	r.routes = next
	r.mu.Unlock()

	logging.Info("filemetrix router reloaded",
		zap.Int("repositories", len(next)),
		zap.Bool("has_fallback", r.fallback != nil))

	return errors.Join(errs...)
}

// Resolve returns the backend serving repoURL.
func (r *Router) Resolve(repoURL string) (provider.Filemetrix, error) {
	r.mu.RLock()
	rt := r.routes[catalog.NormalizeURL(repoURL)]
	r.mu.RUnlock()

	if rt != nil {
		return rt.backend, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w %s", ErrNoBackend, repoURL)
}

func (r *Router) GetDatasetInfo(ctx context.Context, repoURL, datasetID string) (*models.DatasetInfo, error) {
	b, err := r.Resolve(repoURL)
	if err != nil {
		return nil, err
	}
	return b.GetDatasetInfo(ctx, repoURL, datasetID)
}

func (r *Router) ListFiles(ctx context.Context, repoURL, datasetID string) ([]models.FileEntry, error) {
	b, err := r.Resolve(repoURL)
	if err != nil {
		return nil, err
	}
	return b.ListFiles(ctx, repoURL, datasetID)
}
