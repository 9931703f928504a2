package models

import "time"

// VreKind names a VirtualResearchEnv variant.
type VreKind string

const (
	VreEoscInline        VreKind = "eosc_inline"
	VreBrowserNative     VreKind = "browser_native"
	VreHosted            VreKind = "hosted"
	VreHostedProvisioned VreKind = "hosted_provisioned"
)

// VirtualResearchEnv is a tool descriptor resolved from the tool registry.
// The set of variants is closed: EoscInline, BrowserNative, Hosted and
// HostedProvisioned. Consumers switch on the concrete type.
type VirtualResearchEnv interface {
	VreID() string
	Kind() VreKind
	isVirtualResearchEnv()
}

// EoscInline is a tool opened inline in the portal page.
type EoscInline struct {
	ID      string
	Version string
}

// BrowserNative is a tool that redirects to a third-party site with the
// selected files. It needs no provisioned resources.
type BrowserNative struct {
	ID    string
	Files []string
}

// Hosted is a tool that runs on provisioned resources and is launched
// through the dispatcher. Requirements are file basenames the selection
// must contain.
type Hosted struct {
	ID           string
	Version      string
	Requirements []string
}

// HostedProvisioned is a hosted tool that also asks for resources to be
// allocated on launch. Declared for the registry, not assembled yet.
type HostedProvisioned struct {
	ID        string
	Config    map[string]any
	Files     []string
	Resources Resources
}

// Resources is the allocation a HostedProvisioned tool asks for.
type Resources struct {
	CPUs      int `json:"cpus" yaml:"cpus"`
	MemoryMB  int `json:"memory_mb" yaml:"memory_mb"`
	StorageGB int `json:"storage_gb" yaml:"storage_gb"`
}

func (v EoscInline) VreID() string        { return v.ID }
func (v BrowserNative) VreID() string     { return v.ID }
func (v Hosted) VreID() string            { return v.ID }
func (v HostedProvisioned) VreID() string { return v.ID }

func (EoscInline) Kind() VreKind        { return VreEoscInline }
func (BrowserNative) Kind() VreKind     { return VreBrowserNative }
func (Hosted) Kind() VreKind            { return VreHosted }
func (HostedProvisioned) Kind() VreKind { return VreHostedProvisioned }

func (EoscInline) isVirtualResearchEnv()        {}
func (BrowserNative) isVirtualResearchEnv()     {}
func (Hosted) isVirtualResearchEnv()            {}
func (HostedProvisioned) isVirtualResearchEnv() {}

// ToolDescriptor is the flat, serializable view of a VirtualResearchEnv.
type ToolDescriptor struct {
	ID           string     `json:"id"`
	Kind         VreKind    `json:"kind"`
	Version      string     `json:"version,omitempty"`
	Requirements []string   `json:"requirements,omitempty"`
	Files        []string   `json:"files,omitempty"`
	Resources    *Resources `json:"resources,omitempty"`
}

// Describe flattens v for listing.
func Describe(v VirtualResearchEnv) ToolDescriptor {
	d := ToolDescriptor{ID: v.VreID(), Kind: v.Kind()}
	switch t := v.(type) {
	case EoscInline:
		d.Version = t.Version
	case BrowserNative:
		d.Files = t.Files
	case Hosted:
		d.Version = t.Version
		d.Requirements = t.Requirements
	case HostedProvisioned:
		d.Files = t.Files
		res := t.Resources
		d.Resources = &res
	}
	return d
}

// LaunchRequest is handed to the dispatcher to provision a hosted tool.
type LaunchRequest struct {
	VreID string      `json:"vre_id"`
	Files []FileEntry `json:"files"`
}

// EntryKind names an EntryPoint variant.
type EntryKind string

const (
	EntryEoscInline EntryKind = "eosc_inline"
	EntryHosted     EntryKind = "hosted"
)

// VreEntry tells the client how to open the assembled tool.
type VreEntry struct {
	VreID      string     `json:"vre_id"`
	Version    string     `json:"version"`
	EntryPoint EntryPoint `json:"entry_point"`
}

// EntryPoint is set for exactly one of EoscInline or Hosted, matching Kind.
type EntryPoint struct {
	Kind       EntryKind    `json:"kind"`
	EoscInline *InlineEntry `json:"eosc_inline,omitempty"`
	Hosted     *HostedEntry `json:"hosted,omitempty"`
}

// InlineEntry opens an inline tool on the attached file.
type InlineEntry struct {
	CallbackURL string    `json:"url_callback"`
	FileEntry   FileEntry `json:"file_entry"`
}

// HostedEntry redirects to a launched environment.
type HostedEntry struct {
	CallbackURL string `json:"url_callback"`
}

// RequestStatus is one launch request as tracked by the dispatcher.
type RequestStatus struct {
	RequestID   string    `json:"request_id"`
	VreID       string    `json:"vre_id"`
	State       string    `json:"state"`
	CallbackURL string    `json:"url_callback,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
