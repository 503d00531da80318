//go:build !js && !tinygo

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/joeblew999/dashdeck/internal/processor"
)

// ChromeOptions configures the headless Chrome backend
type ChromeOptions struct {
	// ExecPath overrides Chrome discovery
	ExecPath string
	// Scale is the device scale factor; zero means 1
	Scale float64
}

// ChromeCapturer renders the slide SVG in headless Chrome and screenshots it.
// One browser is shared; each capture gets its own tab.
type ChromeCapturer struct {
	opts        ChromeOptions
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	closeTab    context.CancelFunc
}

// NewChromeCapturer starts a headless browser
func NewChromeCapturer(ctx context.Context, opts ChromeOptions) (*ChromeCapturer, error) {
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Headless,
		chromedp.DisableGPU,
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, closeTab := chromedp.NewContext(allocCtx)

	// start the browser now so a missing Chrome fails here rather than on the first slide
	if err := chromedp.Run(browserCtx); err != nil {
		closeTab()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &ChromeCapturer{
		opts:        opts,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		closeTab:    closeTab,
	}, nil
}

// Close shuts the browser down
func (c *ChromeCapturer) Close() {
	c.closeTab()
	c.allocCancel()
}

// Capture implements Capturer
func (c *ChromeCapturer) Capture(ctx context.Context, h *processor.Handle) (*CaptureResult, error) {
	tabCtx, cancel := chromedp.NewContext(c.browserCtx)
	defer cancel()

	// tie the tab to the caller's context
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	html := fmt.Sprintf(`<!DOCTYPE html><html><head><style>html,body{margin:0;padding:0;overflow:hidden}</style></head><body>%s</body></html>`, h.SVGString())
	w := int64(math.Round(h.Width))
	ht := int64(math.Round(h.Height))

	var shot []byte
	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(w, ht, chromedp.EmulateScale(c.opts.Scale)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitVisible("svg", chromedp.ByQuery),
		chromedp.Screenshot("svg", &shot, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("chrome capture slide %d: %w", h.Slide.Index, err)
	}

	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot of slide %d: %w", h.Slide.Index, err)
	}
	return newResult(toRGBA(img)), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
