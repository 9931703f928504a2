package models

import "time"

// Phase is the browse phase an event was produced in.
type Phase string

const (
	PhaseInit      Phase = "init"
	PhaseBrowsing  Phase = "browsing"
	PhaseCompleted Phase = "completed"
)

// EventKind identifies which payload of a BrowseEvent is set.
type EventKind string

const (
	EventDatasetInfo EventKind = "dataset_info"
	EventProgress    EventKind = "progress"
	EventFileEntry   EventKind = "file_entry"
	EventError       EventKind = "error"
	EventComplete    EventKind = "complete"
)

// BrowseEvent is one message of a browse stream. Exactly one payload
// field is set, matching Kind.
type BrowseEvent struct {
	Phase       Phase        `json:"phase"`
	Kind        EventKind    `json:"kind"`
	DatasetInfo *DatasetInfo `json:"dataset_info,omitempty"`
	Progress    *Progress    `json:"progress,omitempty"`
	FileEntry   *FileEntry   `json:"file_entry,omitempty"`
	Error       *BrowseError `json:"error,omitempty"`
	Complete    *Complete    `json:"complete,omitempty"`
}

// Progress reports the running totals of a browse session.
type Progress struct {
	FilesScanned int64  `json:"files_scanned"`
	BytesScanned int64  `json:"bytes_scanned"`
	Percent      uint32 `json:"percent"`
	Path         string `json:"path,omitempty"`
}

// BrowseError is an error reported in-band. Fatal errors end the stream.
type BrowseError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Path    string    `json:"path,omitempty"`
	Fatal   bool      `json:"fatal"`
}

// Complete is the terminal event of a successful session.
type Complete struct {
	TotalFiles     int64     `json:"total_files"`
	TotalSizeBytes int64     `json:"total_size_bytes"`
	Success        bool      `json:"success"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Terminal reports whether no further event may follow e.
func (e BrowseEvent) Terminal() bool {
	switch e.Kind {
	case EventComplete:
		return true
	case EventError:
		return e.Error != nil && e.Error.Fatal
	}
	return false
}
