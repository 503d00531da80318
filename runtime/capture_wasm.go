//go:build js || tinygo || cloudflare

package runtime

import "github.com/joeblew999/dashdeck/pkg/pipeline"

// Backends lists the capture backends of WASM builds; there is no browser to drive
func Backends() []pipeline.Backend {
	return []pipeline.Backend{pipeline.BackendRaster}
}
