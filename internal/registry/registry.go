// Package registry serves tool descriptors from the current catalog
// snapshot.
package registry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/EOSC-Data-Commons/req-packager/internal/catalog"
	"github.com/EOSC-Data-Commons/req-packager/internal/metrics"
	"github.com/EOSC-Data-Commons/req-packager/internal/models"
	"github.com/EOSC-Data-Commons/req-packager/internal/provider"
)

// Store implements provider.ToolRegistry. Readers never block a swap and
// always see one whole snapshot.
type Store struct {
	snap atomic.Pointer[catalog.Snapshot]
}

var _ provider.ToolRegistry = (*Store)(nil)

// New creates a Store serving snap.
func New(snap *catalog.Snapshot) *Store {
	s := &Store{}
	s.Swap(snap)
	return s
}

// Swap publishes a new snapshot.
func (s *Store) Swap(snap *catalog.Snapshot) {
	s.snap.Store(snap)
	metrics.SetCatalogTools(len(snap.Tools()))
}

// Snapshot returns the snapshot currently served.
func (s *Store) Snapshot() *catalog.Snapshot {
	return s.snap.Load()
}

func (s *Store) GetTool(ctx context.Context, id string) (models.VirtualResearchEnv, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := s.snap.Load().Tool(id)
	if !ok {
		return nil, fmt.Errorf("tool %q: %w", id, provider.ErrNotFound)
	}
	return t, nil
}

func (s *Store) ListTools(ctx context.Context) ([]models.VirtualResearchEnv, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.snap.Load().Tools(), nil
}
