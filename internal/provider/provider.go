// Package provider defines the capabilities the packager consumes from
// external collaborators: filemetrix, the tool registry and the dispatcher.
package provider

import (
	"context"
	"errors"
	"net/url"

	"github.com/EOSC-Data-Commons/req-packager/internal/models"
)

// ErrNotFound is returned when a dataset or tool does not exist.
var ErrNotFound = errors.New("not found")

// Filemetrix supplies dataset metadata and file listings.
type Filemetrix interface {
	// GetDatasetInfo returns the metadata of one dataset in a repository.
	GetDatasetInfo(ctx context.Context, repoURL, datasetID string) (*models.DatasetInfo, error)

	// ListFiles returns the dataset's files in provider order.
	ListFiles(ctx context.Context, repoURL, datasetID string) ([]models.FileEntry, error)
}

// ToolRegistry resolves tool identifiers to descriptors.
type ToolRegistry interface {
	// GetTool returns the descriptor for id, or an error wrapping ErrNotFound.
	GetTool(ctx context.Context, id string) (models.VirtualResearchEnv, error)

	// ListTools returns every registered descriptor. The catalog is small
	// enough to hold in memory.
	ListTools(ctx context.Context) ([]models.VirtualResearchEnv, error)
}

// Dispatcher provisions environments for hosted tools.
type Dispatcher interface {
	// Launch blocks until the environment is ready and returns its callback URL.
	Launch(ctx context.Context, req models.LaunchRequest) (*url.URL, error)

	// CheckUserRequests lists a user's launch requests and their state.
	CheckUserRequests(ctx context.Context, userID string) ([]models.RequestStatus, error)
}
