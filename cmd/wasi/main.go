//go:build wasi || wasip1

// WASI entry point, built with tinygo -target=wasi. Reads a dashboard on stdin
// and writes the PDF to stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joeblew999/dashdeck/internal/export"
	"github.com/joeblew999/dashdeck/internal/processor"
	"github.com/joeblew999/dashdeck/pkg/document"
	"github.com/joeblew999/dashdeck/pkg/pipeline"
	"github.com/joeblew999/dashdeck/pkg/slides"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "export":
		if err := doExport(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "version":
		fmt.Println("dashdeck v0.1.0 (wasi)")
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: dashdeck <command>")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  export   Read dashboard YAML/JSON from stdin, write PDF to stdout")
	fmt.Fprintln(os.Stderr, "  version  Print version")
	fmt.Fprintln(os.Stderr, "  help     Print this help")
	fmt.Fprintln(os.Stderr, "Environment: DASHDECK_WIDTH, DASHDECK_HEIGHT, DASHDECK_PAGE_SIZE, DASHDECK_DATE")
}

func doExport() error {
	source, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	d, err := slides.Parse(source, "")
	if err != nil {
		return err
	}

	cfg := processor.DefaultConfig()
	if w, err := strconv.Atoi(os.Getenv("DASHDECK_WIDTH")); err == nil && w > 0 {
		cfg.Width = w
	}
	if h, err := strconv.Atoi(os.Getenv("DASHDECK_HEIGHT")); err == nil && h > 0 {
		cfg.Height = h
	}

	opts := export.Options{
		PageSize: document.A4,
		Logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	if v := os.Getenv("DASHDECK_PAGE_SIZE"); v != "" {
		if opts.PageSize, err = document.ParsePageSize(v); err != nil {
			return err
		}
	}
	if v := os.Getenv("DASHDECK_DATE"); v != "" {
		day, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return fmt.Errorf("DASHDECK_DATE: %w", err)
		}
		opts.Now = func() time.Time { return day }
	}

	// nothing renders asynchronously in-process, so no settle delay
	capturer := pipeline.WithDeadline(&pipeline.RasterCapturer{}, pipeline.DefaultTimeout)
	sink := export.SinkFunc(func(ctx context.Context, name string, data []byte) error {
		fmt.Fprintln(os.Stderr, name)
		_, err := os.Stdout.Write(data)
		return err
	})

	err = export.NewController(processor.NewRenderer(cfg), capturer, sink, opts).Run(context.Background(), *d)
	if errors.Is(err, export.ErrCancelled) {
		return nil
	}
	return err
}
