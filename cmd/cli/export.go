//go:build !js && !tinygo && !cloudflare

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/joeblew999/dashdeck/internal/app"
	"github.com/joeblew999/dashdeck/internal/config"
	"github.com/joeblew999/dashdeck/internal/export"
	"github.com/joeblew999/dashdeck/pkg/document"
	"github.com/joeblew999/dashdeck/pkg/slides"
	"github.com/joeblew999/dashdeck/runtime"
)

var (
	exportOut         string
	exportBackend     string
	exportSettle      time.Duration
	exportTimeout     time.Duration
	exportConcurrency int
	exportPage        string
	exportDate        string

	exportCmd = &cobra.Command{
		Use:   "export <dashboard.yml|json>",
		Short: "Export a dashboard to a PDF deck",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
)

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOut, "out", "o", "", "output directory (default storage.dir)")
	f.StringVar(&exportBackend, "backend", "", "capture backend: raster or chrome")
	f.DurationVar(&exportSettle, "settle", -1, "wait before each capture")
	f.DurationVar(&exportTimeout, "timeout", -1, "deadline for each capture")
	f.IntVar(&exportConcurrency, "concurrency", 0, "slides captured at once")
	f.StringVar(&exportPage, "page", "", "page size: A4, A3, Letter or Legal")
	f.StringVar(&exportDate, "date", "", "date stamped into the file name, YYYY-MM-DD")
}

// applyExportFlags lets flags override the loaded config
func applyExportFlags(cmd *cobra.Command, cfg *config.Config) error {
	if exportOut != "" {
		cfg.Storage.Dir = exportOut
	}
	if exportBackend != "" {
		cfg.Capture.Backend = exportBackend
	}
	if cmd.Flags().Changed("settle") {
		cfg.Capture.Settle = exportSettle
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Capture.Timeout = exportTimeout
	}
	if exportConcurrency > 0 {
		cfg.Export.Concurrency = exportConcurrency
	}
	if exportPage != "" {
		size, err := document.ParsePageSize(exportPage)
		if err != nil {
			return err
		}
		cfg.Document.PageSize = string(size)
	}
	return cfg.Validate()
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()
	if err := applyExportFlags(cmd, cfg); err != nil {
		return err
	}

	d, err := slides.LoadFile(args[0])
	if err != nil {
		return err
	}

	opts := cfg.ExportOptions(logger)
	if exportDate != "" {
		day, err := time.Parse(time.DateOnly, exportDate)
		if err != nil {
			return fmt.Errorf("--date: %w", err)
		}
		opts.Now = func() time.Time { return day }
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	themes, err := runtime.NewLocalFileStorage(cfg.Storage.Themes)
	if err != nil {
		return err
	}
	out, err := runtime.NewLocalFileStorage(cfg.Storage.Dir)
	if err != nil {
		return err
	}
	renderer, err := app.Renderer(ctx, cfg, themes)
	if err != nil {
		return err
	}
	capturer, release, err := runtime.NewCapturer(ctx, cfg.CaptureOptions())
	if err != nil {
		return err
	}
	defer release()

	var saved string
	sink := export.SinkFunc(func(ctx context.Context, name string, data []byte) error {
		if err := out.Put(ctx, name, data, "application/pdf"); err != nil {
			return err
		}
		saved, _ = out.FullPath(name)
		return nil
	})

	interactive := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	if interactive {
		// the progress bar owns the terminal
		logger = slog.New(slog.DiscardHandler)
		opts.Logger = logger
	}
	ctrl := export.NewController(renderer, capturer, sink, opts)

	if interactive {
		err = runWithProgress(ctx, ctrl, *d)
	} else {
		ctrl.OnChange(func(s export.Snapshot) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %d/%d\n", s.State, s.Progress.Current, s.Progress.Total)
		})
		err = ctrl.Run(ctx, *d)
	}

	switch {
	case err == nil:
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Saved "+saved))
		return nil
	case errors.Is(err, export.ErrCancelled):
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Export cancelled, nothing saved"))
		return nil
	case export.IsFailure(err):
		return fmt.Errorf("%s (%w)", export.UserMessage, err)
	default:
		return err
	}
}
