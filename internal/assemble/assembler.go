// Package assemble turns a tool id and a file selection into the single
// entry point the client opens.
package assemble

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/EOSC-Data-Commons/req-packager/internal/logging"
	"github.com/EOSC-Data-Commons/req-packager/internal/metrics"
	"github.com/EOSC-Data-Commons/req-packager/internal/models"
	"github.com/EOSC-Data-Commons/req-packager/internal/provider"
)

// DefaultCallbackURL is handed to inline tools until the portal supplies
// its own callback.
const DefaultCallbackURL = "https://example.com"

// Options tunes an Assembler.
type Options struct {
	InlineCallbackURL string
	ProviderTimeout   time.Duration // tool registry lookups
	LaunchTimeout     time.Duration // dispatcher launch
}

// Assembler resolves tools and launches hosted ones. It keeps no state
// between calls.
type Assembler struct {
	tools      provider.ToolRegistry
	dispatcher provider.Dispatcher
	opts       Options
}

// New creates an Assembler.
func New(tools provider.ToolRegistry, dispatcher provider.Dispatcher, opts Options) *Assembler {
	if opts.InlineCallbackURL == "" {
		opts.InlineCallbackURL = DefaultCallbackURL
	}
	return &Assembler{tools: tools, dispatcher: dispatcher, opts: opts}
}

// Assemble returns exactly one VreEntry or exactly one *models.Error.
// The dispatcher is called at most once, and only for a Hosted tool whose
// requirements are all met.
func (a *Assembler) Assemble(ctx context.Context, vreID string, files []models.FileEntry) (*models.VreEntry, error) {
	log := logging.WithContext(ctx).With(zap.String("vre_id", vreID), zap.Int("files", len(files)))

	tool, err := provider.Call(ctx, a.opts.ProviderTimeout, "tool_registry", "get_tool",
		func(ctx context.Context) (models.VirtualResearchEnv, error) {
			return a.tools.GetTool(ctx, vreID)
		})
	if err == nil && tool == nil {
		err = fmt.Errorf("tool %s resolved to nothing", vreID)
	}
	if err != nil {
		metrics.RecordAssembly("unknown", "tool_resolution_failed")
		log.Warn("tool resolution failed", zap.Error(err))
		return nil, models.Wrap(models.CodeToolResolutionFailed, err, "unable to resolve tool %s", vreID)
	}

	var entry *models.VreEntry
	switch t := tool.(type) {
	case models.EoscInline:
		entry, err = a.inline(t, files)
	case models.Hosted:
		entry, err = a.hosted(ctx, t, files)
	default:
		err = models.Errorf(models.CodeUnsupportedVreVariant, "tool %s of kind %s cannot be assembled", tool.VreID(), tool.Kind())
	}

	if err != nil {
		metrics.RecordAssembly(string(tool.Kind()), string(models.CodeOf(err)))
		log.Warn("assembly failed", zap.String("kind", string(tool.Kind())), zap.Error(err))
		return nil, err
	}
	metrics.RecordAssembly(string(tool.Kind()), "ok")
	log.Info("package assembled", zap.String("kind", string(tool.Kind())), zap.String("entry", string(entry.EntryPoint.Kind)))
	return entry, nil
}

func (a *Assembler) inline(t models.EoscInline, files []models.FileEntry) (*models.VreEntry, error) {
	if len(files) != 1 {
		return nil, models.Errorf(models.CodeValidationFailed, "inline tool only processes one file, got: %d", len(files))
	}
	return &models.VreEntry{
		VreID:   t.ID,
		Version: t.Version,
		EntryPoint: models.EntryPoint{
			Kind: models.EntryEoscInline,
			EoscInline: &models.InlineEntry{
				CallbackURL: a.opts.InlineCallbackURL,
				FileEntry:   files[0],
			},
		},
	}, nil
}

func (a *Assembler) hosted(ctx context.Context, t models.Hosted, files []models.FileEntry) (*models.VreEntry, error) {
	if missing := Unmet(t.Requirements, files); len(missing) > 0 {
		return nil, models.Errorf(models.CodeValidationFailed, "tool %s requirements not met: missing %s", t.ID, strings.Join(missing, ", "))
	}

	req := models.LaunchRequest{VreID: t.ID, Files: append([]models.FileEntry(nil), files...)}
	start := time.Now()
	callback, err := provider.Call(ctx, a.opts.LaunchTimeout, "dispatcher", "launch",
		func(ctx context.Context) (*url.URL, error) {
			return a.dispatcher.Launch(ctx, req)
		})
	metrics.RecordLaunch(time.Since(start))
	if err == nil && callback == nil {
		err = fmt.Errorf("no callback URL returned")
	}
	if err != nil {
		return nil, models.Wrap(models.CodeDispatcherUnavailable, err, "unable to launch tool %s", t.ID)
	}

	return &models.VreEntry{
		VreID:   t.ID,
		Version: t.Version,
		EntryPoint: models.EntryPoint{
			Kind:   models.EntryHosted,
			Hosted: &models.HostedEntry{CallbackURL: callback.String()},
		},
	}, nil
}

// Unmet returns the requirements with no matching basename in files, in
// declaration order and without duplicates.
func Unmet(requirements []string, files []models.FileEntry) []string {
	have := make(map[string]struct{}, len(files))
	for _, f := range files {
		have[path.Base(f.Path)] = struct{}{}
	}
	var missing []string
	seen := make(map[string]struct{}, len(requirements))
	for _, r := range requirements {
		if _, ok := have[r]; ok {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		missing = append(missing, r)
	}
	return missing
}
