//go:build !js && !tinygo && !cloudflare

package runtime

import "github.com/joeblew999/dashdeck/pkg/pipeline"

// Backends lists the capture backends of native builds
func Backends() []pipeline.Backend {
	return []pipeline.Backend{pipeline.BackendRaster, pipeline.BackendChrome}
}
