// Package pipeline defines the capture stage: turning a mounted slide into pixels.
//
// Backends implement Capturer. Settled and WithDeadline wrap any backend with the
// settle delay and the per-capture deadline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/joeblew999/dashdeck/internal/processor"
)

// Backend names a capture implementation
type Backend string

const (
	BackendRaster Backend = "raster"
	BackendChrome Backend = "chrome"
)

// Default capture timings
const (
	DefaultSettle  = 1500 * time.Millisecond
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrCaptureTimeout is returned when a capture outlives its deadline
	ErrCaptureTimeout = errors.New("capture timed out")
	// ErrInterrupted is returned when the settle wait is cut short by an interrupt signal
	ErrInterrupted = errors.New("capture interrupted")
)

// CaptureResult is the rasterised slide.
// It is handed to the assembler right away and not kept.
type CaptureResult struct {
	Image  *image.RGBA
	Width  int
	Height int
}

func newResult(img *image.RGBA) *CaptureResult {
	b := img.Bounds()
	return &CaptureResult{Image: img, Width: b.Dx(), Height: b.Dy()}
}

// Capturer rasterises a mounted slide. It must not modify the slide.
type Capturer interface {
	Capture(ctx context.Context, h *processor.Handle) (*CaptureResult, error)
}

// CapturerFunc adapts a function to Capturer
type CapturerFunc func(ctx context.Context, h *processor.Handle) (*CaptureResult, error)

func (f CapturerFunc) Capture(ctx context.Context, h *processor.Handle) (*CaptureResult, error) {
	return f(ctx, h)
}

type interruptKey struct{}

// WithInterrupt attaches a signal that cuts settle waits short without cancelling ctx.
// An in-flight capture keeps running; only the wait before it is abandoned.
func WithInterrupt(ctx context.Context, ch <-chan struct{}) context.Context {
	return context.WithValue(ctx, interruptKey{}, ch)
}

func interruptFrom(ctx context.Context) <-chan struct{} {
	ch, _ := ctx.Value(interruptKey{}).(<-chan struct{})
	return ch
}

// Settled waits delay before every capture, standing in for "the slide has finished painting".
// A fixed delay is a heuristic; slow charts can still be captured early.
func Settled(c Capturer, delay time.Duration) Capturer {
	if delay <= 0 {
		return c
	}
	return CapturerFunc(func(ctx context.Context, h *processor.Handle) (*CaptureResult, error) {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-interruptFrom(ctx):
			return nil, ErrInterrupted
		}
		return c.Capture(ctx, h)
	})
}

// WithDeadline bounds each capture to timeout, failing with ErrCaptureTimeout.
// The wrapped capture sees a context that expires at the deadline.
func WithDeadline(c Capturer, timeout time.Duration) Capturer {
	if timeout <= 0 {
		return c
	}
	return CapturerFunc(func(ctx context.Context, h *processor.Handle) (*CaptureResult, error) {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type outcome struct {
			res *CaptureResult
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			res, err := c.Capture(cctx, h)
			done <- outcome{res, err}
		}()

		select {
		case o := <-done:
			if o.err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, fmt.Errorf("%w after %s: %v", ErrCaptureTimeout, timeout, o.err)
			}
			return o.res, o.err
		case <-cctx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w after %s", ErrCaptureTimeout, timeout)
		}
	})
}

// Options configures New
type Options struct {
	Backend Backend
	Settle  time.Duration
	Timeout time.Duration
	// Scale multiplies the slide canvas size for raster captures
	Scale float64
	// ChromePath overrides the Chrome executable for the chrome backend
	ChromePath string
}

// New builds the configured backend wrapped with deadline and settle delay.
// The returned close func releases backend resources.
func New(ctx context.Context, opts Options) (Capturer, func(), error) {
	var (
		c       Capturer
		release = func() {}
	)
	switch opts.Backend {
	case "", BackendRaster:
		c = &RasterCapturer{Scale: opts.Scale}
	case BackendChrome:
		cc, err := NewChromeCapturer(ctx, ChromeOptions{ExecPath: opts.ChromePath, Scale: opts.Scale})
		if err != nil {
			return nil, nil, err
		}
		c, release = cc, cc.Close
	default:
		return nil, nil, fmt.Errorf("unknown capture backend %q", opts.Backend)
	}
	return Settled(WithDeadline(c, opts.Timeout), opts.Settle), release, nil
}
