// Package models contains the domain types shared by the browser, the
// assembler and the transport layer.
package models

import "time"

// DatasetInfo describes a dataset as reported by filemetrix.
// TotalFiles and TotalSizeBytes are nil when the provider does not know them.
type DatasetInfo struct {
	RepoURL        string            `json:"repo_url"`
	DatasetID      string            `json:"dataset_id"`
	Description    string            `json:"description,omitempty"`
	TotalFiles     *int64            `json:"total_files,omitempty"`
	TotalSizeBytes *int64            `json:"total_size_bytes,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// DeclaredFiles returns the declared file count and whether it is known.
func (d *DatasetInfo) DeclaredFiles() (int64, bool) {
	if d == nil || d.TotalFiles == nil {
		return 0, false
	}
	return *d.TotalFiles, true
}

// DeclaredBytes returns the declared byte count and whether it is known.
func (d *DatasetInfo) DeclaredBytes() (int64, bool) {
	if d == nil || d.TotalSizeBytes == nil {
		return 0, false
	}
	return *d.TotalSizeBytes, true
}

// Clone returns a deep copy so that a session can hand the info to the
// consumer without sharing the declared totals or tags.
func (d *DatasetInfo) Clone() *DatasetInfo {
	if d == nil {
		return nil
	}
	c := *d
	if d.TotalFiles != nil {
		n := *d.TotalFiles
		c.TotalFiles = &n
	}
	if d.TotalSizeBytes != nil {
		n := *d.TotalSizeBytes
		c.TotalSizeBytes = &n
	}
	if d.Tags != nil {
		c.Tags = make(map[string]string, len(d.Tags))
		for k, v := range d.Tags {
			c.Tags[k] = v
		}
	}
	return &c
}

// FileEntry is one file of a dataset listing.
type FileEntry struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// Int64 returns a pointer to n. Handy for optional declared totals.
func Int64(n int64) *int64 {
	return &n
}
