package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/dashdeck/internal/processor"
	"github.com/joeblew999/dashdeck/pkg/document"
	"github.com/joeblew999/dashdeck/pkg/pipeline"
	"github.com/joeblew999/dashdeck/pkg/slides"
)

var exportDay = time.Date(2024, 5, 1, 15, 4, 5, 0, time.UTC)

func dash(name string, n int) slides.Dashboard {
	d := slides.Dashboard{Name: name}
	for i := 1; i <= n; i++ {
		d.Graphs = append(d.Graphs, slides.Graph{
			ID:     fmt.Sprintf("g%d", i),
			Title:  fmt.Sprintf("Graph %d", i),
			Labels: []string{"a", "b"},
			Series: []slides.Series{{Name: "s", Values: []float64{float64(i), 2}}},
		})
	}
	return d
}

// fakeCapturer returns a small image per slide; its width encodes the slide index
type fakeCapturer struct {
	mu    sync.Mutex
	calls []int
	hook  func(index int) error
	delay func(index int) time.Duration
}

func (f *fakeCapturer) Capture(ctx context.Context, h *processor.Handle) (*pipeline.CaptureResult, error) {
	idx := h.Slide.Index
	f.mu.Lock()
	f.calls = append(f.calls, idx)
	hook, delay := f.hook, f.delay
	f.mu.Unlock()

	if delay != nil {
		time.Sleep(delay(idx))
	}
	if hook != nil {
		if err := hook(idx); err != nil {
			return nil, err
		}
	}
	img := image.NewRGBA(image.Rect(0, 0, 16+idx, 9))
	return &pipeline.CaptureResult{Image: img, Width: 16 + idx, Height: 9}, nil
}

func (f *fakeCapturer) Calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

type memSink struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (s *memSink) Save(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	s.saved[name] = data
	return nil
}

func (s *memSink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.saved {
		out = append(out, k)
	}
	return out
}

func testRenderer() *processor.Renderer {
	return processor.NewRenderer(processor.Config{Width: 320, Height: 180})
}

func newTestController(c pipeline.Capturer, sink Sink, opts Options) *Controller {
	opts.Now = func() time.Time { return exportDay }
	return NewController(testRenderer(), c, sink, opts)
}

// recorder collects every snapshot a controller emits
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) add(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func TestProgressCountsEveryPage(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("%d graphs", n), func(t *testing.T) {
			sink := &memSink{}
			ctrl := newTestController(&fakeCapturer{}, sink, Options{})
			rec := &recorder{}
			ctrl.OnChange(rec.add)

			require.NoError(t, ctrl.Run(context.Background(), dash("Ops", n)))

			snaps := rec.all()
			var currents []int
			for _, s := range snaps {
				assert.Equal(t, n+1, s.Progress.Total)
				if s.State == Running {
					currents = append(currents, s.Progress.Current)
				}
			}
			want := make([]int, n+2)
			for i := range want {
				want[i] = i
			}
			assert.Equal(t, want, currents)

			last := snaps[len(snaps)-1]
			assert.Equal(t, Completed, last.State)
			assert.Equal(t, Progress{Current: n + 1, Total: n + 1}, last.Progress)
			assert.Empty(t, last.Error)
			assert.Len(t, sink.Names(), 1)
		})
	}
}

func TestCancelBeforeFirstCapture(t *testing.T) {
	fc := &fakeCapturer{}
	sink := &memSink{}
	ctrl := newTestController(pipeline.Settled(fc, time.Hour), sink, Options{})

	require.NoError(t, ctrl.Start(context.Background(), dash("Ops", 3)))
	ctrl.Cancel()
	err := ctrl.Wait()

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, Snapshot{State: Cancelled, Progress: Progress{}}, ctrl.Snapshot())
	assert.Empty(t, sink.Names())
	assert.Empty(t, fc.Calls())
	assert.NoError(t, ctrl.Err())
}

func TestCancelAfterSomePagesResetsProgress(t *testing.T) {
	for k := 1; k <= 3; k++ {
		t.Run(fmt.Sprintf("after %d", k), func(t *testing.T) {
			fc := &fakeCapturer{}
			sink := &memSink{}
			ctrl := newTestController(fc, sink, Options{})
			fc.hook = func(index int) error {
				// cancel while slide k-1 is in flight; it still lands as page k
				if index == k-1 {
					ctrl.Cancel()
				}
				return nil
			}
			rec := &recorder{}
			ctrl.OnChange(rec.add)

			err := ctrl.Run(context.Background(), dash("Ops", 3))
			assert.ErrorIs(t, err, ErrCancelled)

			assert.Len(t, fc.Calls(), k)
			snaps := rec.all()
			assert.Equal(t, k, snaps[len(snaps)-2].Progress.Current)
			assert.Equal(t, Snapshot{State: Cancelled, Progress: Progress{}}, ctrl.Snapshot())
			assert.Empty(t, sink.Names())
			assert.Empty(t, ctrl.Pages())
		})
	}
}

func TestPagesFollowSlideOrder(t *testing.T) {
	fc := &fakeCapturer{}
	ctrl := newTestController(fc, &memSink{}, Options{})
	require.NoError(t, ctrl.Run(context.Background(), dash("Ops", 3)))

	assert.Equal(t, []int{0, 1, 2, 3}, fc.Calls())
	assert.Equal(t, []string{"title", "g1", "g2", "g3"}, labels(ctrl.Pages()))
}

func TestConcurrentCaptureKeepsPageOrder(t *testing.T) {
	fc := &fakeCapturer{
		// later slides finish first
		delay: func(index int) time.Duration { return time.Duration(4-index) * 15 * time.Millisecond },
	}
	ctrl := newTestController(fc, &memSink{}, Options{Concurrency: 4})
	rec := &recorder{}
	ctrl.OnChange(rec.add)

	require.NoError(t, ctrl.Run(context.Background(), dash("Ops", 3)))

	pages := ctrl.Pages()
	assert.Equal(t, []string{"title", "g1", "g2", "g3"}, labels(pages))
	for i, p := range pages {
		assert.InDelta(t, 9*p.Width/float64(16+i), p.Height, 1e-9)
	}
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, fc.Calls())
	assert.Equal(t, Progress{Current: 4, Total: 4}, ctrl.Snapshot().Progress)

	var currents []int
	for _, s := range rec.all() {
		if s.State == Running {
			currents = append(currents, s.Progress.Current)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, currents)
}

func labels(pages []document.Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.Label
	}
	return out
}

func TestDocumentName(t *testing.T) {
	sink := &memSink{}
	ctrl := newTestController(&fakeCapturer{}, sink, Options{})
	require.NoError(t, ctrl.Run(context.Background(), dash("Q3 Report: Sales & Marketing!", 1)))

	want := "Q3_Report__Sales___Marketing__2024-05-01.pdf"
	assert.Equal(t, []string{want}, sink.Names())
	assert.Equal(t, want, ctrl.Snapshot().Document)
	assert.Equal(t, "%PDF-", string(sink.saved[want][:5]))
}

func TestCaptureFailureKeepsProgress(t *testing.T) {
	for i := 1; i <= 3; i++ {
		t.Run(fmt.Sprintf("slide %d", i), func(t *testing.T) {
			boom := errors.New("tainted canvas")
			fc := &fakeCapturer{hook: func(index int) error {
				if index == i {
					return boom
				}
				return nil
			}}
			sink := &memSink{}
			ctrl := newTestController(fc, sink, Options{})

			err := ctrl.Run(context.Background(), dash("Ops", 3))
			assert.ErrorIs(t, err, ErrCaptureFailure)
			assert.ErrorIs(t, err, boom)
			assert.ErrorIs(t, ctrl.Err(), boom)

			snap := ctrl.Snapshot()
			assert.Equal(t, Failed, snap.State)
			assert.Equal(t, UserMessage, snap.Error)
			assert.Equal(t, Progress{Current: i, Total: 4}, snap.Progress)
			assert.Empty(t, sink.Names())
		})
	}
}

func TestConcurrentCaptureFailure(t *testing.T) {
	boom := errors.New("detached node")
	fc := &fakeCapturer{hook: func(index int) error {
		if index == 2 {
			return boom
		}
		return nil
	}}
	ctrl := newTestController(fc, &memSink{}, Options{Concurrency: 2})
	err := ctrl.Run(context.Background(), dash("Ops", 3))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Failed, ctrl.Snapshot().State)
	assert.Zero(t, ctrl.Snapshot().Progress.Current)
}

func TestCaptureDeadline(t *testing.T) {
	slow := pipeline.CapturerFunc(func(ctx context.Context, h *processor.Handle) (*pipeline.CaptureResult, error) {
		time.Sleep(time.Second)
		return nil, nil
	})
	ctrl := newTestController(pipeline.WithDeadline(slow, 20*time.Millisecond), &memSink{}, Options{})

	err := ctrl.Run(context.Background(), dash("Ops", 1))
	assert.ErrorIs(t, err, ErrCaptureFailure)
	assert.ErrorIs(t, err, pipeline.ErrCaptureTimeout)
	assert.Equal(t, Failed, ctrl.Snapshot().State)
}

func TestSaveFailure(t *testing.T) {
	sink := SinkFunc(func(ctx context.Context, name string, data []byte) error {
		return errors.New("disk full")
	})
	ctrl := newTestController(&fakeCapturer{}, sink, Options{})

	err := ctrl.Run(context.Background(), dash("Ops", 2))
	assert.ErrorIs(t, err, ErrSaveFailure)
	snap := ctrl.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, Progress{Current: 3, Total: 3}, snap.Progress)
}

func TestStartWhileRunning(t *testing.T) {
	fc := &fakeCapturer{}
	ctrl := newTestController(pipeline.Settled(fc, time.Hour), &memSink{}, Options{})

	require.NoError(t, ctrl.Start(context.Background(), dash("Ops", 1)))
	assert.ErrorIs(t, ctrl.Start(context.Background(), dash("Ops", 1)), ErrJobRunning)
	ctrl.Cancel()
	assert.ErrorIs(t, ctrl.Wait(), ErrCancelled)
}

func TestRestartAfterTerminalState(t *testing.T) {
	fc := &fakeCapturer{}
	ctrl := newTestController(fc, &memSink{}, Options{})
	fc.hook = func(index int) error {
		ctrl.Cancel()
		return nil
	}
	assert.ErrorIs(t, ctrl.Run(context.Background(), dash("Ops", 2)), ErrCancelled)

	// a new job gets a new token; the old cancel does not leak into it
	fc.mu.Lock()
	fc.hook = nil
	fc.mu.Unlock()
	require.NoError(t, ctrl.Run(context.Background(), dash("Ops", 2)))
	assert.Equal(t, Snapshot{State: Completed, Progress: Progress{3, 3}, Document: "Ops_2024-05-01.pdf"}, ctrl.Snapshot())
}

func TestContextCancelCountsAsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := newTestController(pipeline.Settled(&fakeCapturer{}, time.Hour), &memSink{}, Options{})

	require.NoError(t, ctrl.Start(ctx, dash("Ops", 1)))
	cancel()
	assert.ErrorIs(t, ctrl.Wait(), ErrCancelled)
	assert.Equal(t, Cancelled, ctrl.Snapshot().State)
}

func TestContextCancelRaceIsNeverAFailure(t *testing.T) {
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		sink := &memSink{}
		ctrl := newTestController(pipeline.Settled(&fakeCapturer{}, time.Hour), sink, Options{})

		require.NoError(t, ctrl.Start(ctx, dash("Ops", 2)))
		cancel()
		require.ErrorIs(t, ctrl.Wait(), ErrCancelled)
		snap := ctrl.Snapshot()
		require.Equal(t, Cancelled, snap.State)
		require.Equal(t, Progress{}, snap.Progress)
		require.Empty(t, snap.Error)
		require.Empty(t, sink.saved)
	}
}

func TestContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ctrl := newTestController(&fakeCapturer{}, &memSink{}, Options{})

	require.NoError(t, ctrl.Start(ctx, dash("Ops", 1)))
	assert.ErrorIs(t, ctrl.Wait(), ErrCancelled)
	assert.Equal(t, Cancelled, ctrl.Snapshot().State)
}

func TestInvalidDashboard(t *testing.T) {
	ctrl := newTestController(&fakeCapturer{}, &memSink{}, Options{})
	err := ctrl.Start(context.Background(), slides.Dashboard{Name: " "})
	assert.Error(t, err)
	assert.Equal(t, Idle, ctrl.Snapshot().State)
	assert.NoError(t, ctrl.Wait())

	ctrl.Cancel()
	assert.Equal(t, Idle, ctrl.Snapshot().State)
}

func TestIsFailure(t *testing.T) {
	assert.False(t, IsFailure(nil))
	assert.False(t, IsFailure(ErrCancelled))
	assert.True(t, IsFailure(fmt.Errorf("%w: x", ErrCaptureFailure)))
}
