//go:build !js && !tinygo && !cloudflare

// Package app assembles the native export service from a Config
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joeblew999/dashdeck/handler"
	"github.com/joeblew999/dashdeck/internal/config"
	"github.com/joeblew999/dashdeck/internal/export"
	"github.com/joeblew999/dashdeck/internal/processor"
	"github.com/joeblew999/dashdeck/pkg/pipeline"
	"github.com/joeblew999/dashdeck/runtime"
)

// App is a wired service. Close releases the capture backend and the KV store.
type App struct {
	Renderer  *processor.Renderer
	Capturer  pipeline.Capturer
	Documents *runtime.LocalFileStorage
	Themes    *runtime.LocalFileStorage
	KV        *runtime.BadgerKV
	Jobs      *export.Manager
	Server    *handler.Server

	closers []func() error
}

// Renderer loads the configured theme and builds the slide renderer
func Renderer(ctx context.Context, cfg *config.Config, themes runtime.Storage) (*processor.Renderer, error) {
	theme, err := pipeline.LoadTheme(ctx, pipeline.StorageLoader(themes), cfg.Render.Theme)
	if err != nil {
		return nil, err
	}
	return processor.NewRenderer(cfg.RendererConfig(theme)), nil
}

// New opens storage, KV and the capture backend and wires the job manager and
// HTTP handlers on top. The runtime defaults are pointed at the opened stores.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	if a.Themes, err = runtime.NewLocalFileStorage(cfg.Storage.Themes); err != nil {
		return nil, fmt.Errorf("themes storage: %w", err)
	}
	if a.Documents, err = runtime.NewLocalFileStorage(cfg.Storage.Dir); err != nil {
		return nil, fmt.Errorf("documents storage: %w", err)
	}
	if a.KV, err = runtime.OpenBadgerKV(cfg.KV.Path, logger); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.KV.Close)

	runtime.SetRuntime(&runtime.Runtime{Themes: a.Themes, Documents: a.Documents, KV: a.KV})

	if a.Renderer, err = Renderer(ctx, cfg, a.Themes); err != nil {
		return nil, err
	}
	capturer, release, err := runtime.NewCapturer(ctx, cfg.CaptureOptions())
	if err != nil {
		return nil, err
	}
	a.Capturer = capturer
	a.closers = append(a.closers, func() error { release(); return nil })

	a.Jobs = export.NewManager(export.ManagerConfig{
		Renderer:  a.Renderer,
		Capturer:  a.Capturer,
		Documents: a.Documents,
		KV:        a.KV,
		Options:   cfg.ExportOptions(logger),
		Logger:    logger,
	})
	a.closers = append(a.closers, func() error { a.Jobs.Close(); return nil })

	a.Server = handler.New(handler.Options{
		Jobs:     a.Jobs,
		Renderer: a.Renderer,
		Logger:   logger,
		Runtime:  "native",
		Backends: runtime.Backends(),
	})
	ok = true
	return a, nil
}

// Close shuts down in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Serve runs the HTTP API on addr until ctx is done, then drains for up to
// five seconds
func (a *App) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
