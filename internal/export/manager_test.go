package export

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/dashdeck/internal/processor"
	"github.com/joeblew999/dashdeck/pkg/pipeline"
	"github.com/joeblew999/dashdeck/runtime"
)

// gatedCapturer holds every capture until released
type gatedCapturer struct {
	gate chan struct{}
	fakeCapturer
}

func (g *gatedCapturer) Capture(ctx context.Context, h *processor.Handle) (*pipeline.CaptureResult, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.fakeCapturer.Capture(ctx, h)
}

func newTestManager(t *testing.T, c pipeline.Capturer) (*Manager, *runtime.MemoryStorage, *runtime.MemoryKV) {
	t.Helper()
	docs := runtime.NewMemoryStorage()
	kv := runtime.NewMemoryKV()
	m := NewManager(ManagerConfig{
		Renderer:  testRenderer(),
		Capturer:  c,
		Documents: docs,
		KV:        kv,
		Options:   Options{Now: func() time.Time { return exportDay }},
	})
	t.Cleanup(m.Close)
	return m, docs, kv
}

func TestManagerCompletesJob(t *testing.T) {
	m, docs, kv := newTestManager(t, &fakeCapturer{})

	id, err := m.Start(dash("Ops Review", 2))
	require.NoError(t, err)

	st, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, Completed, st.State)
	assert.Equal(t, Progress{Current: 3, Total: 3}, st.Progress)
	assert.Equal(t, "exports/"+id+"/Ops_Review_2024-05-01.pdf", st.Document)
	require.NotNil(t, st.FinishedAt)
	assert.Equal(t, "application/pdf", docs.ContentType(st.Document))

	rc, st2, err := m.Document(context.Background(), id)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))
	assert.Equal(t, st, st2)

	raw, err := kv.Get(context.Background(), statusKey(id))
	require.NoError(t, err)
	var persisted JobStatus
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, Completed, persisted.State)
	assert.Equal(t, id, persisted.ID)

	assert.Len(t, m.List(), 1)
}

func TestManagerSubscribe(t *testing.T) {
	gc := &gatedCapturer{gate: make(chan struct{})}
	m, _, _ := newTestManager(t, gc)

	id, err := m.Start(dash("Ops", 2))
	require.NoError(t, err)
	ch, stop, err := m.Subscribe(id)
	require.NoError(t, err)
	defer stop()

	first := <-ch
	assert.Equal(t, Running, first.State)
	assert.Equal(t, 3, first.Progress.Total)

	close(gc.gate)
	var last JobStatus
	for st := range ch {
		assert.GreaterOrEqual(t, st.Progress.Current, last.Progress.Current)
		last = st
	}
	assert.Equal(t, Completed, last.State)

	// subscribing to a finished job yields its final status once
	ch, _, err = m.Subscribe(id)
	require.NoError(t, err)
	st, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, Completed, st.State)
	_, ok = <-ch
	assert.False(t, ok)
}

func TestManagerUnsubscribe(t *testing.T) {
	gc := &gatedCapturer{gate: make(chan struct{})}
	m, _, _ := newTestManager(t, gc)

	id, err := m.Start(dash("Ops", 1))
	require.NoError(t, err)
	ch, stop, err := m.Subscribe(id)
	require.NoError(t, err)
	<-ch
	stop()
	stop()
	_, ok := <-ch
	assert.False(t, ok)

	close(gc.gate)
	st, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, Completed, st.State)
}

func TestManagerCancel(t *testing.T) {
	m, docs, _ := newTestManager(t, pipeline.Settled(&fakeCapturer{}, time.Hour))

	id, err := m.Start(dash("Ops", 2))
	require.NoError(t, err)

	_, _, err = m.Document(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, m.Cancel(id))
	st, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, st.State)
	assert.Equal(t, Progress{}, st.Progress)
	assert.Empty(t, st.Document)

	keys, err := docs.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestManagerUnknownJob(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeCapturer{})

	assert.ErrorIs(t, m.Cancel("nope"), ErrJobNotFound)
	_, err := m.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, _, err = m.Subscribe("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = m.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestManagerStatusFromKV(t *testing.T) {
	m, _, kv := newTestManager(t, &fakeCapturer{})

	old := JobStatus{ID: "old", Dashboard: "Ops", State: Failed, Error: UserMessage, Progress: Progress{1, 3}}
	data, err := json.Marshal(old)
	require.NoError(t, err)
	require.NoError(t, kv.Put(context.Background(), statusKey("old"), data))

	st, err := m.Status(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, old.State, st.State)
	assert.Equal(t, old.Progress, st.Progress)
	assert.Empty(t, m.List())
}

func TestManagerEvictsFinishedJobs(t *testing.T) {
	docs := runtime.NewMemoryStorage()
	m := NewManager(ManagerConfig{
		Renderer:  testRenderer(),
		Capturer:  &fakeCapturer{},
		Documents: docs,
		KV:        runtime.NewMemoryKV(),
		Options:   Options{Now: func() time.Time { return exportDay }},
		Retention: 10 * time.Millisecond,
	})
	t.Cleanup(m.Close)

	id, err := m.Start(dash("Ops", 1))
	require.NoError(t, err)
	done, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, Completed, done.State)

	assert.Eventually(t, func() bool { return len(m.List()) == 0 }, 2*time.Second, 5*time.Millisecond)

	st, err := m.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, Completed, st.State)
	assert.Equal(t, done.Document, st.Document)

	st, err = m.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, Completed, st.State)

	rc, _, err := m.Document(context.Background(), id)
	require.NoError(t, err)
	rc.Close()
	assert.ErrorIs(t, m.Cancel(id), ErrJobNotFound)
}

func TestManagerRejectsInvalidDashboard(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeCapturer{})
	_, err := m.Start(dash("", 1))
	assert.Error(t, err)
	assert.Empty(t, m.List())
}

func TestManagerCloseCancelsJobs(t *testing.T) {
	docs := runtime.NewMemoryStorage()
	m := NewManager(ManagerConfig{
		Renderer:  testRenderer(),
		Capturer:  pipeline.Settled(&fakeCapturer{}, time.Hour),
		Documents: docs,
		KV:        runtime.NewMemoryKV(),
	})
	id, err := m.Start(dash("Ops", 1))
	require.NoError(t, err)

	m.Close()
	st, err := m.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, st.State)
}
