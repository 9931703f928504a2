// Request packager server
//
// Features:
// - SSE dataset browsing against filemetrix (http, s3, static backends)
// - Package assembly with dispatcher launch for hosted tools
// - Tool catalog from YAML with hot reload
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/EOSC-Data-Commons/req-packager/internal/api"
	"github.com/EOSC-Data-Commons/req-packager/internal/assemble"
	"github.com/EOSC-Data-Commons/req-packager/internal/browse"
	"github.com/EOSC-Data-Commons/req-packager/internal/catalog"
	"github.com/EOSC-Data-Commons/req-packager/internal/config"
	"github.com/EOSC-Data-Commons/req-packager/internal/dispatcher"
	"github.com/EOSC-Data-Commons/req-packager/internal/filemetrix"
	"github.com/EOSC-Data-Commons/req-packager/internal/logging"
	"github.com/EOSC-Data-Commons/req-packager/internal/metrics"
	"github.com/EOSC-Data-Commons/req-packager/internal/provider"
	"github.com/EOSC-Data-Commons/req-packager/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("request packager starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("catalog", cfg.CatalogPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("server stopped with error", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
	logging.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	snap, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	tools := registry.New(snap)

	var fallback provider.Filemetrix
	if cfg.FilemetrixURL != "" {
		fallback = filemetrix.NewHTTPClient(cfg.FilemetrixURL)
	}
	router := filemetrix.NewRouter(fallback)
	if err := router.Reload(ctx, snap.Repositories()); err != nil {
		logging.Warn("some repositories are unavailable", zap.Error(err))
	}

	d := dispatcher.New(cfg.DispatcherURL)

	browser := browse.New(router, browse.Options{
		BufferSize:          cfg.BrowseBufferSize,
		DeliveryTimeout:     cfg.DeliveryTimeout,
		ProviderTimeout:     cfg.ProviderTimeout,
		MaxDeliveryFailures: cfg.MaxDeliveryFailures,
	})
	assembler := assemble.New(tools, d, assemble.Options{
		InlineCallbackURL: cfg.InlineCallbackURL,
		ProviderTimeout:   cfg.ProviderTimeout,
		LaunchTimeout:     cfg.LaunchTimeout,
	})
	srv := api.NewServer(browser, assembler, tools, d, cfg.ProviderTimeout)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Request contexts derive from ctx so open browse streams end as soon
	// as shutdown starts.
	httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	g.Go(func() error {
		logging.Info("API server listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.CatalogWatch {
		w := catalog.NewWatcher(cfg.CatalogPath, func(next *catalog.Snapshot) {
			tools.Swap(next)
			if err := router.Reload(ctx, next.Repositories()); err != nil {
				logging.Warn("some repositories are unavailable", zap.Error(err))
			}
		})
		g.Go(func() error { return w.Run(ctx) })
	}

	g.Go(func() error {
		<-ctx.Done()
		logging.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		errs := errors.Join(
			httpServer.Shutdown(shutdownCtx),
			metricsServer.Shutdown(shutdownCtx),
		)
		if errors.Is(errs, context.DeadlineExceeded) {
			logging.Warn("shutdown timed out, closing connections")
			return errors.Join(httpServer.Close(), metricsServer.Close())
		}
		return errs
	})

	return g.Wait()
}
