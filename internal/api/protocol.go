package api

import "github.com/EOSC-Data-Commons/req-packager/internal/models"

// PackageRequest is the body of POST /api/v1/packages.
type PackageRequest struct {
	VreID       string             `json:"vre_id"`
	FileEntries []models.FileEntry `json:"file_entries"`
}

// PackageResponse is returned by POST /api/v1/packages.
type PackageResponse struct {
	VreEntry *models.VreEntry `json:"vre_entry"`
}

// ToolsResponse is returned by GET /api/v1/tools.
type ToolsResponse struct {
	Tools []models.ToolDescriptor `json:"tools"`
}

// RequestsResponse is returned by GET /api/v1/requests.
type RequestsResponse struct {
	Requests []models.RequestStatus `json:"requests"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Code    models.ErrorCode `json:"code,omitempty"`
	Details string           `json:"details,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Tools  int    `json:"tools"`
}
