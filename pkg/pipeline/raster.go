package pipeline

import (
	"context"
	"fmt"

	"github.com/joeblew999/dashdeck/internal/processor"
)

// RasterCapturer draws mounted slides in-process
type RasterCapturer struct {
	// Scale multiplies the canvas size; zero means 1
	Scale float64
}

// Capture implements Capturer
func (r *RasterCapturer) Capture(ctx context.Context, h *processor.Handle) (*CaptureResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := h.Raster(r.Scale)
	if err != nil {
		return nil, fmt.Errorf("raster slide %d: %w", h.Slide.Index, err)
	}
	return newResult(img), nil
}
