//go:build cloudflare

// Cloudflare Workers entry point using syumai/workers
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/syumai/workers"
	"github.com/syumai/workers/cloudflare/queues"

	"github.com/joeblew999/dashdeck/handler"
	"github.com/joeblew999/dashdeck/internal/export"
	"github.com/joeblew999/dashdeck/internal/processor"
	"github.com/joeblew999/dashdeck/pkg/pipeline"
	"github.com/joeblew999/dashdeck/pkg/slides"
	"github.com/joeblew999/dashdeck/runtime"
)

// Bindings declared in wrangler.toml
const (
	inputBucket    = "DASHDECK_INPUT"
	documentBucket = "DASHDECK_DOCUMENTS"
	jobsKV         = "DASHDECK_JOBS"
)

var logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))

func main() {
	jobs, err := initRuntime()
	if err != nil {
		logger.Error("runtime init failed", "err", err)
		os.Exit(1)
	}

	srv := handler.New(handler.Options{
		Jobs:     jobs,
		Renderer: processor.NewRenderer(processor.DefaultConfig()),
		Logger:   logger,
		Runtime:  "cloudflare",
		Backends: runtime.Backends(),
	})

	// dashboards uploaded to the input bucket are exported from queue events
	queues.ConsumeNonBlock(func(batch *queues.MessageBatch) error {
		return consumeQueue(jobs, batch)
	})

	workers.Serve(srv.Router())
}

func initRuntime() (*export.Manager, error) {
	input, err := runtime.NewR2Storage(inputBucket)
	if err != nil {
		return nil, err
	}
	documents, err := runtime.NewR2Storage(documentBucket)
	if err != nil {
		return nil, err
	}
	kv, err := runtime.NewCloudflareKV(jobsKV)
	if err != nil {
		return nil, err
	}
	runtime.SetRuntime(&runtime.Runtime{Themes: input, Documents: documents, KV: kv})

	capturer, _, err := runtime.NewCapturer(context.Background(), pipeline.Options{
		Backend: pipeline.BackendRaster,
		Timeout: pipeline.DefaultTimeout,
	})
	if err != nil {
		return nil, err
	}
	return export.NewManager(export.ManagerConfig{
		Renderer:  processor.NewRenderer(processor.DefaultConfig()),
		Capturer:  capturer,
		Documents: documents,
		KV:        kv,
		Logger:    logger,
	}), nil
}

// consumeQueue handles R2 event notifications for uploaded dashboards
func consumeQueue(jobs *export.Manager, batch *queues.MessageBatch) error {
	ctx := context.Background()
	for _, msg := range batch.Messages {
		body, err := msg.BytesBody()
		if err != nil {
			msg.Retry()
			continue
		}

		var event struct {
			Action string `json:"action"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		}
		if err := json.Unmarshal(body, &event); err != nil {
			msg.Retry()
			continue
		}

		key := event.Object.Key
		switch strings.ToLower(path.Ext(key)) {
		case ".json", ".yml", ".yaml":
		default:
			msg.Ack()
			continue
		}

		rc, err := runtime.Themes().Get(ctx, key)
		if err != nil {
			msg.Retry()
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			msg.Retry()
			continue
		}

		d, err := slides.Parse(data, path.Ext(key))
		if err != nil {
			// a bad dashboard will not get better on retry
			logger.Warn("skipping invalid dashboard", "key", key, "err", err)
			msg.Ack()
			continue
		}
		id, err := jobs.Start(*d)
		if err != nil {
			msg.Retry()
			continue
		}
		st, err := jobs.Wait(ctx, id)
		if err != nil || st.State == export.Failed {
			logger.Warn("queued export failed", "key", key, "id", id, "err", err)
			msg.Retry()
			continue
		}
		logger.Info("queued export finished", "key", key, "id", id, "state", st.State, "document", st.Document)
		msg.Ack()
	}
	return nil
}
