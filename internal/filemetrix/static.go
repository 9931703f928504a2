package filemetrix

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/EOSC-Data-Commons/req-packager/internal/models"
	"github.com/EOSC-Data-Commons/req-packager/internal/provider"
)

// StaticDataset is a dataset listed inline in the catalog.
type StaticDataset struct {
	ID          string             `json:"id"`
	Description string             `json:"description"`
	Tags        map[string]string  `json:"tags"`
	Files       []models.FileEntry `json:"files"`
	// Declared totals override the ones computed from Files, which lets a
	// catalog describe a listing that is knowingly incomplete.
	TotalFiles     *int64 `json:"total_files"`
	TotalSizeBytes *int64 `json:"total_size_bytes"`
}

// StaticConfig is the JSON config of a static backend.
type StaticConfig struct {
	Datasets []StaticDataset `json:"datasets"`
}

// Static serves datasets from memory.
type Static struct {
	datasets map[string]StaticDataset
}

// NewStatic indexes datasets by id.
func NewStatic(datasets []StaticDataset) *Static {
	s := &Static{datasets: make(map[string]StaticDataset, len(datasets))}
	for _, d := range datasets {
		s.datasets[d.ID] = d
	}
	return s
}

// NewStaticFromJSON creates a Static backend from raw JSON config.
func NewStaticFromJSON(raw json.RawMessage) (*Static, error) {
	var cfg StaticConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse static config: %w", err)
	}
	for i, d := range cfg.Datasets {
		if d.ID == "" {
			return nil, fmt.Errorf("datasets[%d]: missing id", i)
		}
	}
	return NewStatic(cfg.Datasets), nil
}

func (s *Static) GetDatasetInfo(ctx context.Context, repoURL, datasetID string) (*models.DatasetInfo, error) {
	d, err := s.lookup(ctx, repoURL, datasetID)
	if err != nil {
		return nil, err
	}
	var size int64
	for _, f := range d.Files {
		size += f.SizeBytes
	}
	info := &models.DatasetInfo{
		RepoURL:        repoURL,
		DatasetID:      d.ID,
		Description:    d.Description,
		TotalFiles:     models.Int64(int64(len(d.Files))),
		TotalSizeBytes: models.Int64(size),
		Tags:           d.Tags,
	}
	if d.TotalFiles != nil {
		info.TotalFiles = models.Int64(*d.TotalFiles)
	}
	if d.TotalSizeBytes != nil {
		info.TotalSizeBytes = models.Int64(*d.TotalSizeBytes)
	}
	return info.Clone(), nil
}

func (s *Static) ListFiles(ctx context.Context, repoURL, datasetID string) ([]models.FileEntry, error) {
	d, err := s.lookup(ctx, repoURL, datasetID)
	if err != nil {
		return nil, err
	}
	return append([]models.FileEntry(nil), d.Files...), nil
}

func (s *Static) lookup(ctx context.Context, repoURL, datasetID string) (StaticDataset, error) {
	if err := ctx.Err(); err != nil {
		return StaticDataset{}, err
	}
	d, ok := s.datasets[datasetID]
	if !ok {
		return StaticDataset{}, fmt.Errorf("dataset %s in %s: %w", datasetID, repoURL, provider.ErrNotFound)
	}
	return d, nil
}
