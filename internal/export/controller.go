// Package export runs export jobs: it drives slides through capture and
// assembly, tracks progress, honours cancellation and owns the failure boundary
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/dashdeck/internal/processor"
	"github.com/joeblew999/dashdeck/pkg/document"
	"github.com/joeblew999/dashdeck/pkg/pipeline"
	"github.com/joeblew999/dashdeck/pkg/slides"
)

// State is the job state
type State string

const (
	Idle      State = "idle"
	Running   State = "running"
	Completed State = "completed"
	Cancelled State = "cancelled"
	Failed    State = "failed"
)

// Terminal reports whether no further transitions happen in this job
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// Progress counts appended pages against the job's page total
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Snapshot is what a presenting UI needs
type Snapshot struct {
	State    State    `json:"state"`
	Progress Progress `json:"progress"`
	// Error is the user-facing message of a failed job
	Error string `json:"error,omitempty"`
	// Document is the file name handed to the sink
	Document string `json:"document,omitempty"`
}

// Sink receives the finished document
type Sink interface {
	Save(ctx context.Context, name string, data []byte) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, name string, data []byte) error

func (f SinkFunc) Save(ctx context.Context, name string, data []byte) error {
	return f(ctx, name, data)
}

// Options configures a Controller
type Options struct {
	PageSize      document.PageSize
	MaxImageWidth int
	// Concurrency > 1 captures that many slides at once and appends in order afterwards
	Concurrency int
	// Now stamps the file name and document; defaults to time.Now
	Now    func() time.Time
	Logger *slog.Logger
}

// job is one Start..terminal run
type job struct {
	token *cancelToken
	done  chan struct{}
	err   error
}

// Controller runs one export job at a time
type Controller struct {
	renderer *processor.Renderer
	capturer pipeline.Capturer
	sink     Sink
	opts     Options
	log      *slog.Logger

	mu        sync.Mutex
	state     State
	progress  Progress
	cause     error
	docName   string
	pages     []document.Page
	current   *job
	listeners []func(Snapshot)
}

// NewController wires a controller
func NewController(r *processor.Renderer, c pipeline.Capturer, sink Sink, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		renderer: r,
		capturer: c,
		sink:     sink,
		opts:     opts,
		log:      log.With("component", "export"),
		state:    Idle,
	}
}

// OnChange registers fn to receive every state or progress change.
// fn runs on the job goroutine and must not block.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Snapshot returns the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{State: c.state, Progress: c.progress, Document: c.docName}
	if c.state == Failed {
		s.Error = UserMessage
	}
	return s
}

// Pages lists the pages of the last completed document, in order
func (c *Controller) Pages() []document.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]document.Page(nil), c.pages...)
}

// Err returns the cause of the last failure, for logs
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Cancel asks the running job to stop at its next checkpoint.
// A capture already in flight finishes first. Without a running job it does nothing.
func (c *Controller) Cancel() {
	c.mu.Lock()
	j, running := c.current, c.state == Running
	c.mu.Unlock()
	if running && j != nil {
		c.log.Info("cancel requested")
		j.token.cancel()
	}
}

// Run exports d and blocks until the job is terminal. It returns nil when the
// document was saved, ErrCancelled after a cancel, or the wrapped failure.
func (c *Controller) Run(ctx context.Context, d slides.Dashboard) error {
	if err := c.Start(ctx, d); err != nil {
		return err
	}
	return c.Wait()
}

// Start begins exporting d in the background
func (c *Controller) Start(ctx context.Context, d slides.Dashboard) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid dashboard: %w", err)
	}
	list := slides.Enumerate(d)

	c.mu.Lock()
	if c.state == Running {
		c.mu.Unlock()
		return ErrJobRunning
	}
	j := &job{token: newCancelToken(), done: make(chan struct{})}
	c.current = j
	c.state = Running
	c.progress = Progress{Current: 0, Total: len(list)}
	c.cause = nil
	c.docName = ""
	c.pages = nil
	c.mu.Unlock()

	c.log.Info("export started", "dashboard", d.Name, "slides", len(list), "concurrency", c.opts.Concurrency)
	c.notify()

	go func() {
		defer close(j.done)
		j.err = c.execute(ctx, j, d, list)
	}()
	return nil
}

// Wait blocks until the current job is terminal and returns its outcome
func (c *Controller) Wait() error {
	c.mu.Lock()
	j := c.current
	c.mu.Unlock()
	if j == nil {
		return nil
	}
	<-j.done
	return j.err
}

// Done is closed when the current job is terminal
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.current.done
}

func (c *Controller) execute(ctx context.Context, j *job, d slides.Dashboard, list []slides.Slide) error {
	ctx, span := tracer.Start(ctx, "export.job", trace.WithAttributes(
		attribute.String("dashboard", d.Name),
		attribute.Int("slides", len(list)),
	))
	defer span.End()

	jobsRunning.Inc()
	defer jobsRunning.Dec()

	// the caller going away counts as a cancel
	stop := context.AfterFunc(ctx, j.token.cancel)
	defer stop()

	start := c.opts.Now()
	name, err := c.produce(ctx, j.token, d, list, start)
	if err != nil && ctx.Err() != nil {
		// stages can see ctx.Err before the AfterFunc has run
		j.token.cancel()
	}

	switch {
	case err == nil:
		c.complete(name)
		span.SetAttributes(attribute.String("document", name))
		c.log.Info("export completed", "dashboard", d.Name, "document", name, "elapsed", time.Since(start))
		jobsTotal.WithLabelValues(string(Completed)).Inc()
		return nil

	case j.token.cancelled():
		c.cancelled()
		span.SetAttributes(attribute.Bool("cancelled", true))
		c.log.Info("export cancelled", "dashboard", d.Name)
		jobsTotal.WithLabelValues(string(Cancelled)).Inc()
		return ErrCancelled

	default:
		c.fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Error("export failed", "dashboard", d.Name, "err", err)
		jobsTotal.WithLabelValues(string(Failed)).Inc()
		return err
	}
}

// produce captures and assembles every slide, then saves the document
func (c *Controller) produce(ctx context.Context, tok *cancelToken, d slides.Dashboard, list []slides.Slide, now time.Time) (string, error) {
	doc, err := document.New(document.Options{
		PageSize:      c.opts.PageSize,
		MaxImageWidth: c.opts.MaxImageWidth,
		Title:         d.Name,
		Created:       now,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAssemblyFailure, err)
	}

	if c.opts.Concurrency > 1 {
		err = c.captureConcurrent(ctx, tok, doc, list)
	} else {
		err = c.captureSequential(ctx, tok, doc, list)
	}
	if err != nil {
		return "", err
	}

	if tok.cancelled() {
		return "", ErrCancelled
	}
	data, err := doc.Finalize()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAssemblyFailure, err)
	}

	name := slides.Filename(d.Name, now)
	if err := c.sink.Save(ctx, name, data); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrSaveFailure, name, err)
	}
	documentBytes.Observe(float64(len(data)))

	c.mu.Lock()
	c.pages = doc.Pages()
	c.mu.Unlock()
	return name, nil
}

func (c *Controller) captureSequential(ctx context.Context, tok *cancelToken, doc *document.Assembler, list []slides.Slide) error {
	for _, s := range list {
		if tok.cancelled() {
			return ErrCancelled
		}
		res, err := c.capture(ctx, tok, s)
		if err != nil {
			return err
		}
		if err := c.appendPage(doc, s, res); err != nil {
			return err
		}
	}
	return nil
}

// captureConcurrent captures into an index-keyed table, then appends in slide order
func (c *Controller) captureConcurrent(ctx context.Context, tok *cancelToken, doc *document.Assembler, list []slides.Slide) error {
	results := make([]*pipeline.CaptureResult, len(list))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, s := range list {
		g.Go(func() error {
			if tok.cancelled() {
				return ErrCancelled
			}
			res, err := c.capture(gctx, tok, s)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, s := range list {
		if tok.cancelled() {
			return ErrCancelled
		}
		if err := c.appendPage(doc, s, results[i]); err != nil {
			return err
		}
		results[i] = nil
	}
	return nil
}

// capture mounts and captures one slide
func (c *Controller) capture(ctx context.Context, tok *cancelToken, s slides.Slide) (*pipeline.CaptureResult, error) {
	ctx, span := tracer.Start(ctx, "export.slide", trace.WithAttributes(
		attribute.Int("index", s.Index),
		attribute.String("label", s.Label()),
	))
	defer span.End()

	start := time.Now()
	h, err := c.renderer.Mount(ctx, s)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: mount slide %d: %w", ErrCaptureFailure, s.Index, err)
	}

	res, err := c.capturer.Capture(pipeline.WithInterrupt(ctx, tok.done), h)
	captureSeconds.WithLabelValues(string(s.Kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: slide %d: %w", ErrCaptureFailure, s.Index, err)
	}
	if res == nil || res.Image == nil {
		return nil, fmt.Errorf("%w: slide %d: empty capture", ErrCaptureFailure, s.Index)
	}
	c.log.Debug("slide captured", "index", s.Index, "label", s.Label(), "width", res.Width, "height", res.Height, "elapsed", time.Since(start))
	return res, nil
}

func (c *Controller) appendPage(doc *document.Assembler, s slides.Slide, res *pipeline.CaptureResult) error {
	if err := doc.AppendPage(s.Label(), res.Image); err != nil {
		return fmt.Errorf("%w: slide %d: %w", ErrAssemblyFailure, s.Index, err)
	}
	pagesAppended.Inc()

	c.mu.Lock()
	c.progress.Current++
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) complete(name string) {
	c.mu.Lock()
	c.state = Completed
	c.progress.Current = c.progress.Total
	c.docName = name
	c.mu.Unlock()
	c.notify()
}

// cancelled resets progress; nothing was saved
func (c *Controller) cancelled() {
	c.mu.Lock()
	c.state = Cancelled
	c.progress = Progress{}
	c.mu.Unlock()
	c.notify()
}

// fail keeps progress where it stopped
func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.state = Failed
	c.cause = err
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	listeners := append([]func(Snapshot){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

// IsFailure reports whether err is a stage failure rather than a cancel
func IsFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrCancelled)
}
