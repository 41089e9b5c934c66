package modes

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"filetransfer/internal/modes/validation"
	"filetransfer/internal/transfer/core/delivery"
	"filetransfer/internal/transfer/core/filename"
	"filetransfer/internal/transfer/core/storage"
	"filetransfer/internal/transfer/server"
	"filetransfer/internal/transfer/state"
	"filetransfer/pkg/config"
	"filetransfer/pkg/logger"
	"filetransfer/pkg/platform"
)

// RunServer listens on the configured address and serves until SIGINT or
// SIGTERM.
func RunServer(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.GetServerAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GetServerAddress(), err)
	}
	return Serve(ctx, cfg, ln)
}

// Serve runs the transfer server on ln until ctx is done, then shuts the
// HTTP server down and closes the content type cache.
func Serve(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	base := logger.Default()
	log := base.WithField("mode", "server")

	p := platform.NewPlatform()
	home, err := p.UserHomeDir()
	if err != nil {
		log.Debug("no home directory, skipping per-user storage", "error", err)
	}
	root, err := storage.OpenFirst(cfg.StorageCandidates(home), p, base)
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to open storage: %w", err)
	}

	if err := validation.NewPlatformValidator(p, base).ValidateRequirements(root.Dir(), cfg.Delivery.ZeroCopy); err != nil {
		ln.Close()
		return fmt.Errorf("platform requirements not met: %w", err)
	}

	decoder, err := filename.New(cfg.Upload.FilenameDecoding)
	if err != nil {
		ln.Close()
		return err
	}

	cache := state.NewContentTypeCache(state.NewFileProber(p), base)
	defer cache.Close()

	limiter := server.NewLimiter(cfg.Server.MaxConcurrentTransfers, cfg.Server.QueueTimeout)

	opts := server.Options{
		BufferSize:       cfg.Upload.BufferSize,
		ProgressInterval: cfg.Upload.ProgressInterval,
		MaxBodyBytes:     cfg.Upload.MaxBodyBytes,
		Decoder:          decoder,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}

	srv := server.New(server.Dependencies{
		Root:      root,
		Deliverer: delivery.NewDeliverer(root, cache, cfg.Delivery.ZeroCopy, base),
		Cache:     cache,
		Limiter:   limiter,
	}, opts, base)

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("file transfer server started",
			"url", "http://"+ln.Addr().String(),
			"storage", root.Dir(),
			"maxConcurrentTransfers", limiter.Capacity(),
			"bufferSize", cfg.Upload.BufferSize,
			"zeroCopy", cfg.Delivery.ZeroCopy,
			"platform", p.GetInfo().OS)

		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}
