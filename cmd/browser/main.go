//go:build js && wasm && !cloudflare

// Browser WASM entry point. Exposes export, preview and cancel to JavaScript;
// themes are fetched over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"syscall/js"

	"github.com/joeblew999/dashdeck/internal/export"
	"github.com/joeblew999/dashdeck/internal/processor"
	"github.com/joeblew999/dashdeck/pkg/document"
	"github.com/joeblew999/dashdeck/pkg/pipeline"
	"github.com/joeblew999/dashdeck/pkg/slides"
	"github.com/joeblew999/dashdeck/runtime"
)

var (
	mu       sync.Mutex
	renderer = processor.NewRenderer(processor.DefaultConfig())
	ctrl     *export.Controller
)

func main() {
	js.Global().Set("dashdeck", js.ValueOf(map[string]any{
		"version":   js.FuncOf(version),
		"configure": js.FuncOf(configure),
		"preview":   js.FuncOf(preview),
		"export":    js.FuncOf(exportDeck),
		"cancel":    js.FuncOf(cancel),
	}))

	// Keep alive
	select {}
}

func version(this js.Value, args []js.Value) any {
	return "dashdeck v0.1.0 (browser)"
}

// configure sets the renderer size and theme.
// Usage: dashdeck.configure({width, height, themesURL, theme}) -> Promise
func configure(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return errorResult("missing config argument")
	}
	jsConfig := args[0]
	cfg := processor.DefaultConfig()
	if w := jsConfig.Get("width"); !w.IsUndefined() {
		cfg.Width = w.Int()
	}
	if h := jsConfig.Get("height"); !h.IsUndefined() {
		cfg.Height = h.Int()
	}
	themesURL := stringField(jsConfig, "themesURL")
	theme := stringField(jsConfig, "theme")

	return promise(func(ctx context.Context) (any, error) {
		if themesURL != "" {
			themes := runtime.NewHTTPStorage(runtime.HTTPStorageConfig{Endpoint: themesURL})
			runtime.SetRuntime(&runtime.Runtime{Themes: themes})
			data, err := pipeline.LoadTheme(ctx, pipeline.StorageLoader(themes), theme)
			if err != nil {
				return nil, err
			}
			cfg.Theme = data
		}
		mu.Lock()
		renderer = processor.NewRenderer(cfg)
		mu.Unlock()
		return successResult(map[string]any{"configured": true}), nil
	})
}

// preview renders one slide of a dashboard to SVG.
// Usage: dashdeck.preview(dashboardJSON, index) -> JSON result
func preview(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return errorResult("usage: preview(dashboardJSON, index)")
	}
	d, err := slides.Parse([]byte(args[0].String()), "json")
	if err != nil {
		return errorResult(err.Error())
	}
	list := slides.Enumerate(*d)
	i := args[1].Int()
	if i < 0 || i >= len(list) {
		return errorResult("slide index out of range")
	}
	mu.Lock()
	r := renderer
	mu.Unlock()
	h, err := r.Mount(context.Background(), list[i])
	if err != nil {
		return errorResult(err.Error())
	}
	return successResult(map[string]any{"svg": h.SVGString(), "slideCount": len(list)})
}

// exportDeck runs an export and resolves with {name, pdf: Uint8Array}.
// Usage: dashdeck.export(dashboardJSON, onProgress?) -> Promise
func exportDeck(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return errorResult("missing dashboard argument")
	}
	d, err := slides.Parse([]byte(args[0].String()), "json")
	if err != nil {
		return errorResult(err.Error())
	}
	var onProgress js.Value
	if len(args) >= 2 && args[1].Type() == js.TypeFunction {
		onProgress = args[1]
	}

	return promise(func(ctx context.Context) (any, error) {
		var name string
		var pdf []byte
		sink := export.SinkFunc(func(ctx context.Context, n string, data []byte) error {
			name, pdf = n, data
			return nil
		})

		mu.Lock()
		c := export.NewController(renderer, pipeline.Settled(&pipeline.RasterCapturer{}, 0), sink, export.Options{PageSize: document.A4})
		ctrl = c
		mu.Unlock()
		if !onProgress.IsUndefined() {
			c.OnChange(func(s export.Snapshot) {
				onProgress.Invoke(s.Progress.Current, s.Progress.Total, string(s.State))
			})
		}

		err := c.Run(ctx, *d)
		if errors.Is(err, export.ErrCancelled) {
			return successResult(map[string]any{"cancelled": true}), nil
		}
		if err != nil {
			return nil, errors.New(export.UserMessage)
		}
		buf := js.Global().Get("Uint8Array").New(len(pdf))
		js.CopyBytesToJS(buf, pdf)
		return js.ValueOf(map[string]any{"success": true, "name": name, "pdf": buf}), nil
	})
}

// cancel stops the running export after its current slide
func cancel(this js.Value, args []js.Value) any {
	mu.Lock()
	c := ctrl
	mu.Unlock()
	if c != nil {
		c.Cancel()
	}
	return nil
}

// promise runs fn off the event loop and settles a JavaScript Promise with it
func promise(fn func(ctx context.Context) (any, error)) js.Value {
	handler := js.FuncOf(func(this js.Value, promiseArgs []js.Value) any {
		resolve := promiseArgs[0]
		reject := promiseArgs[1]
		go func() {
			v, err := fn(context.Background())
			if err != nil {
				reject.Invoke(errorResult(err.Error()))
				return
			}
			resolve.Invoke(v)
		}()
		return nil
	})
	return js.Global().Get("Promise").New(handler)
}

func stringField(v js.Value, key string) string {
	f := v.Get(key)
	if f.IsUndefined() || f.IsNull() {
		return ""
	}
	return f.String()
}

func successResult(data map[string]any) string {
	data["success"] = true
	b, _ := json.Marshal(data)
	return string(b)
}

func errorResult(msg string) string {
	b, _ := json.Marshal(map[string]any{
		"success": false,
		"error":   msg,
	})
	return string(b)
}
