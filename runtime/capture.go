package runtime

import (
	"context"
	"fmt"
	"slices"

	"github.com/joeblew999/dashdeck/pkg/pipeline"
)

// NewCapturer builds a capture backend, refusing ones this build cannot run
func NewCapturer(ctx context.Context, opts pipeline.Options) (pipeline.Capturer, func(), error) {
	if opts.Backend == "" {
		opts.Backend = pipeline.BackendRaster
	}
	if !slices.Contains(Backends(), opts.Backend) {
		return nil, nil, fmt.Errorf("capture backend %q is not available here (have %v)", opts.Backend, Backends())
	}
	return pipeline.New(ctx, opts)
}
