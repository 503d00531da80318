//go:build !js && !tinygo && !cloudflare

package main

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joeblew999/dashdeck/internal/app"
	"github.com/joeblew999/dashdeck/pkg/slides"
	"github.com/joeblew999/dashdeck/runtime"
)

var (
	slidesOut    string
	slidesFormat string

	slidesCmd = &cobra.Command{
		Use:   "slides <dashboard.yml|json>",
		Short: "Render each slide of a dashboard as SVG or PNG previews",
		Args:  cobra.ExactArgs(1),
		RunE:  runSlides,
	}
)

func init() {
	slidesCmd.Flags().StringVarP(&slidesOut, "out", "o", "slides", "output directory")
	slidesCmd.Flags().StringVar(&slidesFormat, "format", "svg", "svg or png")
}

func runSlides(cmd *cobra.Command, args []string) error {
	cfg, _, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()
	if slidesFormat != "svg" && slidesFormat != "png" {
		return fmt.Errorf("--format must be svg or png, got %q", slidesFormat)
	}

	d, err := slides.LoadFile(args[0])
	if err != nil {
		return err
	}
	themes, err := runtime.NewLocalFileStorage(cfg.Storage.Themes)
	if err != nil {
		return err
	}
	renderer, err := app.Renderer(cmd.Context(), cfg, themes)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(slidesOut, 0o755); err != nil {
		return err
	}

	// mount everything first so a bad graph fails before any file is written
	handles, err := renderer.MountAll(cmd.Context(), slides.Enumerate(*d))
	if err != nil {
		return err
	}
	for _, h := range handles {
		s := h.Slide
		name := filepath.Join(slidesOut, fmt.Sprintf("%02d-%s.%s", s.Index, slides.Sanitize(s.Label()), slidesFormat))
		if err := writeSlide(name, func(f *os.File) error {
			if slidesFormat == "svg" {
				return h.SVG(f)
			}
			img, err := h.Raster(cfg.Capture.Scale)
			if err != nil {
				return err
			}
			return png.Encode(f, img)
		}); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

func writeSlide(name string, write func(*os.File) error) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}
