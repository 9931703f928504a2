package filemetrix

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/EOSC-Data-Commons/req-packager/internal/provider"
)

// NewBackendFromConfig creates a backend from a type name and its JSON
// settings.
func NewBackendFromConfig(ctx context.Context, backendType string, config json.RawMessage) (provider.Filemetrix, error) {
	switch backendType {
	case "http":
		return NewHTTPClientFromJSON(config)
	case "s3":
		return NewS3BackendFromJSON(ctx, config)
	case "static":
		return NewStaticFromJSON(config)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}
