//go:build js || tinygo

package pipeline

import (
	"context"
	"errors"

	"github.com/joeblew999/dashdeck/internal/processor"
)

// ChromeOptions configures the headless Chrome backend
type ChromeOptions struct {
	ExecPath string
	Scale    float64
}

// ChromeCapturer is unavailable in WASM builds
type ChromeCapturer struct{}

// NewChromeCapturer always fails: WASM builds cannot start a browser
func NewChromeCapturer(ctx context.Context, opts ChromeOptions) (*ChromeCapturer, error) {
	return nil, errors.New("chrome capture is not available in this build")
}

func (c *ChromeCapturer) Close() {}

func (c *ChromeCapturer) Capture(ctx context.Context, h *processor.Handle) (*CaptureResult, error) {
	return nil, errors.New("chrome capture is not available in this build")
}
