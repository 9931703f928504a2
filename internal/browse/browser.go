// Package browse drives the phased enumeration of a dataset's files
// against filemetrix, reporting progress and errors as an ordered stream.
//
// A session moves Init -> Browsing -> Completed. A provider failure in
// either of the first two phases emits one fatal error and ends the stream
// without a Complete event. Provider calls are never retried.
package browse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EOSC-Data-Commons/req-packager/internal/logging"
	"github.com/EOSC-Data-Commons/req-packager/internal/metrics"
	"github.com/EOSC-Data-Commons/req-packager/internal/models"
	"github.com/EOSC-Data-Commons/req-packager/internal/provider"
)

// Options tunes a Browser.
type Options struct {
	// BufferSize is the capacity of the channel returned by Begin.
	BufferSize int
	// DeliveryTimeout bounds how long a file entry may wait for buffer
	// space before it counts as a failed delivery.
	DeliveryTimeout time.Duration
	// ProviderTimeout bounds each filemetrix call.
	ProviderTimeout time.Duration
	// MaxDeliveryFailures consecutive failed file deliveries end the
	// session. Zero never ends it early.
	MaxDeliveryFailures int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		BufferSize:          16,
		DeliveryTimeout:     30 * time.Second,
		ProviderTimeout:     30 * time.Second,
		MaxDeliveryFailures: 3,
	}
}

// Browser runs browse sessions. It holds no per-session state and is safe
// for concurrent use.
type Browser struct {
	filemetrix provider.Filemetrix
	opts       Options
	now        func() time.Time
}

// New creates a Browser reading from fm.
func New(fm provider.Filemetrix, opts Options) *Browser {
	if opts.BufferSize < 1 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	return &Browser{filemetrix: fm, opts: opts, now: time.Now}
}

// Begin starts a session in its own goroutine and returns the event
// stream. The channel is closed when the session ends. Cancelling ctx
// stops the producer at its next delivery attempt.
func (b *Browser) Begin(ctx context.Context, repoURL, datasetID string) <-chan models.BrowseEvent {
	ch := make(chan models.BrowseEvent, b.opts.BufferSize)
	sink := NewChannelSink(ch, b.opts.DeliveryTimeout)
	go func() {
		defer close(ch)
		_ = b.Run(ctx, repoURL, datasetID, sink)
	}()
	return ch
}

// Run drives one session synchronously, delivering events to sink.
// It returns nil once Complete has been delivered, a *models.Error with
// CodeProviderUnavailable after a fatal provider failure, and a
// *models.Error with CodeConsumerUnreachable (or the context error) when
// the consumer went away.
func (b *Browser) Run(ctx context.Context, repoURL, datasetID string, sink Sink) error {
	s := &session{
		browser:   b,
		sink:      sink,
		repoURL:   repoURL,
		datasetID: datasetID,
		phase:     models.PhaseInit,
	}
	ctx = logging.WithFields(ctx,
		zap.String("session_id", uuid.NewString()),
		zap.String("repo_url", repoURL),
		zap.String("dataset_id", datasetID))
	s.log = logging.WithContext(ctx)

	metrics.BrowseSessionStarted()
	s.log.Info("browse session started")

	err := s.run(ctx)
	s.finish(err)
	return err
}

type session struct {
	browser   *Browser
	sink      Sink
	log       *zap.Logger
	repoURL   string
	datasetID string

	phase        models.Phase
	info         *models.DatasetInfo
	filesScanned int64
	bytesScanned int64
	failures     int // consecutive delivery failures
}

func (s *session) run(ctx context.Context) error {
	b := s.browser

	info, err := provider.Call(ctx, b.opts.ProviderTimeout, "filemetrix", "get_dataset_info",
		func(ctx context.Context) (*models.DatasetInfo, error) {
			return b.filemetrix.GetDatasetInfo(ctx, s.repoURL, s.datasetID)
		})
	if err == nil && info == nil {
		err = errors.New("empty dataset info")
	}
	if err != nil {
		return s.fail(ctx, err, "unable to get dataset info of repo %s, dataset %s", s.repoURL, s.datasetID)
	}
	// Private copy: the declared totals stay fixed for the session.
	s.info = info.Clone()

	if err := s.emit(ctx, models.BrowseEvent{Kind: models.EventDatasetInfo, DatasetInfo: s.info.Clone()}); err != nil {
		return s.gone(ctx, err)
	}

	s.phase = models.PhaseBrowsing
	if err := s.emitProgress(ctx, ""); err != nil {
		return s.gone(ctx, err)
	}

	files, err := provider.Call(ctx, b.opts.ProviderTimeout, "filemetrix", "list_files",
		func(ctx context.Context) ([]models.FileEntry, error) {
			return b.filemetrix.ListFiles(ctx, s.repoURL, s.datasetID)
		})
	if err != nil {
		return s.fail(ctx, err, "unable to list files of repo %s, dataset %s", s.repoURL, s.datasetID)
	}

	for _, file := range files {
		if err := s.deliverFile(ctx, file); err != nil {
			return err
		}
	}

	s.phase = models.PhaseCompleted
	complete := &models.Complete{
		TotalFiles:     s.filesScanned,
		TotalSizeBytes: s.bytesScanned,
		Success:        s.succeeded(),
		FinishedAt:     b.now().UTC(),
	}
	if err := s.emit(ctx, models.BrowseEvent{Kind: models.EventComplete, Complete: complete}); err != nil {
		return s.gone(ctx, err)
	}
	return nil
}

// deliverFile sends one file entry. A failed delivery is reported in-band
// and skipped; only a vanished consumer stops the session.
func (s *session) deliverFile(ctx context.Context, file models.FileEntry) error {
	f := file
	err := s.emit(ctx, models.BrowseEvent{Kind: models.EventFileEntry, FileEntry: &f})
	if err == nil {
		s.failures = 0
		s.filesScanned++
		s.bytesScanned += file.SizeBytes
		metrics.RecordFileDelivered(file.SizeBytes)
		if err := s.emitProgress(ctx, file.Path); err != nil {
			return s.gone(ctx, err)
		}
		return nil
	}

	if ctx.Err() != nil {
		return s.gone(ctx, err)
	}

	s.failures++
	metrics.RecordDeliveryFailure()
	s.log.Warn("file delivery failed", zap.String("path", file.Path), zap.Error(err))

	report := &models.BrowseError{
		Code:    models.CodeFileDeliveryFailed,
		Message: fmt.Sprintf("unable to send file %s to client: %v", file.Path, err),
		Path:    file.Path,
		Fatal:   false,
	}
	if err := s.emit(ctx, models.BrowseEvent{Kind: models.EventError, Error: report}); err != nil {
		return s.gone(ctx, err)
	}

	if limit := s.browser.opts.MaxDeliveryFailures; limit > 0 && s.failures >= limit {
		return s.gone(ctx, fmt.Errorf("%d consecutive file deliveries failed: %w", s.failures, err))
	}
	return nil
}

func (s *session) emit(ctx context.Context, ev models.BrowseEvent) error {
	ev.Phase = s.phase
	if err := s.sink.Send(ctx, ev); err != nil {
		return err
	}
	metrics.RecordBrowseEvent(string(ev.Kind))
	return nil
}

func (s *session) emitProgress(ctx context.Context, path string) error {
	return s.emit(ctx, models.BrowseEvent{
		Kind: models.EventProgress,
		Progress: &models.Progress{
			FilesScanned: s.filesScanned,
			BytesScanned: s.bytesScanned,
			Percent:      Percent(s.filesScanned, s.info),
			Path:         path,
		},
	})
}

// fail reports a fatal provider failure stamped with the current phase.
func (s *session) fail(ctx context.Context, cause error, format string, args ...any) error {
	e := models.Wrap(models.CodeProviderUnavailable, cause, format, args...)
	report := &models.BrowseError{
		Code:    e.Code,
		Message: fmt.Sprintf("%s: %v", e.Message, cause),
		Fatal:   true,
	}
	if err := s.emit(ctx, models.BrowseEvent{Kind: models.EventError, Error: report}); err != nil {
		s.log.Warn("fatal error not delivered", zap.Error(err), zap.NamedError("cause", cause))
		return s.gone(ctx, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return e
}

// gone classifies a delivery failure that ends the session.
func (s *session) gone(ctx context.Context, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return models.Wrap(models.CodeConsumerUnreachable, cause, "consumer stopped reading")
}

func (s *session) succeeded() bool {
	files, ok := s.info.DeclaredFiles()
	if !ok {
		return false
	}
	size, ok := s.info.DeclaredBytes()
	if !ok {
		return false
	}
	return s.filesScanned == files && s.bytesScanned == size
}

func (s *session) finish(err error) {
	fields := []zap.Field{
		zap.String("phase", string(s.phase)),
		zap.Int64("files_scanned", s.filesScanned),
		zap.Int64("bytes_scanned", s.bytesScanned),
	}
	switch {
	case err == nil:
		metrics.BrowseSessionFinished("completed")
		s.log.Info("browse session completed", append(fields, zap.Bool("success", s.succeeded()))...)
	case models.CodeOf(err) == models.CodeProviderUnavailable:
		metrics.BrowseSessionFinished("aborted")
		s.log.Error("browse session aborted", append(fields, zap.Error(err))...)
	default:
		metrics.BrowseSessionFinished("disconnected")
		s.log.Warn("browse consumer disconnected", append(fields, zap.Error(err))...)
	}
}

// Percent is files*100/total, floored and capped at 100. An unknown or
// zero declared total yields 0.
func Percent(filesScanned int64, info *models.DatasetInfo) uint32 {
	total, ok := info.DeclaredFiles()
	if !ok || total <= 0 || filesScanned <= 0 {
		return 0
	}
	p := filesScanned * 100 / total
	if p > 100 {
		p = 100
	}
	return uint32(p)
}
