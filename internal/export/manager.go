package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joeblew999/dashdeck/internal/processor"
	"github.com/joeblew999/dashdeck/pkg/pipeline"
	"github.com/joeblew999/dashdeck/pkg/slides"
	"github.com/joeblew999/dashdeck/runtime"
)

// ErrNotReady is returned when a document is requested before its job completed
var ErrNotReady = errors.New("document not ready")

// JobStatus is the persisted view of a job
type JobStatus struct {
	ID         string     `json:"id"`
	Dashboard  string     `json:"dashboard"`
	State      State      `json:"state"`
	Progress   Progress   `json:"progress"`
	Error      string     `json:"error,omitempty"`
	Document   string     `json:"document,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func statusKey(id string) string {
	return "status:" + id
}

// documentKey keeps same-day exports of one dashboard apart
func documentKey(id, name string) string {
	return path.Join("exports", id, name)
}

// ManagerConfig wires a Manager
type ManagerConfig struct {
	Renderer  *processor.Renderer
	Capturer  pipeline.Capturer
	Documents runtime.Storage
	KV        runtime.KVStore
	// Options is applied to every job's controller
	Options Options
	Logger  *slog.Logger
	// Retention is how long a finished job stays in memory before only its
	// KV status remains; zero means DefaultRetention
	Retention time.Duration
}

// DefaultRetention keeps finished jobs listable for an hour
const DefaultRetention = time.Hour

type managedJob struct {
	ctrl    *Controller
	status  JobStatus
	subs    map[int]chan JobStatus
	nextSub int
}

// Manager runs many export jobs, one controller each
type Manager struct {
	cfg  ManagerConfig
	log  *slog.Logger
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*managedJob
}

// NewManager creates a manager; Close cancels whatever is still running
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Documents == nil {
		cfg.Documents = runtime.Documents()
	}
	if cfg.KV == nil {
		cfg.KV = runtime.KV()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	cfg.Options.Logger = log
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		cfg:  cfg,
		log:  log.With("component", "manager"),
		ctx:  ctx,
		stop: stop,
		jobs: make(map[string]*managedJob),
	}
}

// Start validates d and launches its export, returning the job id
func (m *Manager) Start(d slides.Dashboard) (string, error) {
	id := uuid.NewString()
	sink := SinkFunc(func(ctx context.Context, name string, data []byte) error {
		return m.cfg.Documents.Put(ctx, documentKey(id, name), data, "application/pdf")
	})
	ctrl := NewController(m.cfg.Renderer, m.cfg.Capturer, sink, m.cfg.Options)

	mj := &managedJob{
		ctrl:   ctrl,
		status: JobStatus{ID: id, Dashboard: d.Name, State: Idle, StartedAt: m.cfg.Options.now()},
		subs:   make(map[int]chan JobStatus),
	}
	m.mu.Lock()
	m.jobs[id] = mj
	m.mu.Unlock()

	ctrl.OnChange(func(s Snapshot) { m.update(id, s) })
	if err := ctrl.Start(m.ctx, d); err != nil {
		m.mu.Lock()
		delete(m.jobs, id)
		m.mu.Unlock()
		return "", err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := ctrl.Wait(); IsFailure(err) {
			m.log.Warn("export job failed", "id", id, "err", err)
		}
	}()
	m.log.Info("export job started", "id", id, "dashboard", d.Name)
	return id, nil
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// update records a controller change, persists it and fans it out
func (m *Manager) update(id string, s Snapshot) {
	m.mu.Lock()
	mj, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	st := &mj.status
	st.State = s.State
	st.Progress = s.Progress
	st.Error = s.Error
	if s.Document != "" {
		st.Document = documentKey(id, s.Document)
	}
	if s.State.Terminal() {
		t := m.cfg.Options.now()
		st.FinishedAt = &t
	}
	status := *st

	for _, ch := range mj.subs {
		offer(ch, status)
	}
	if s.State.Terminal() {
		for k, ch := range mj.subs {
			close(ch)
			delete(mj.subs, k)
		}
	}
	m.mu.Unlock()

	m.persist(status)
	if s.State.Terminal() {
		time.AfterFunc(m.cfg.Retention, func() { m.evict(id) })
	}
}

// evict drops a finished job from memory; Status still finds it in the KV store
func (m *Manager) evict(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mj, ok := m.jobs[id]; ok && mj.status.State.Terminal() {
		delete(m.jobs, id)
		m.log.Debug("export job evicted", "id", id)
	}
}

// offer replaces a pending update with the newer one instead of blocking
func offer(ch chan JobStatus, s JobStatus) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

func (m *Manager) persist(s JobStatus) {
	data, err := json.Marshal(s)
	if err != nil {
		m.log.Error("encode job status", "id", s.ID, "err", err)
		return
	}
	if err := m.cfg.KV.Put(m.ctx, statusKey(s.ID), data); err != nil {
		m.log.Warn("persist job status", "id", s.ID, "err", err)
	}
}

// Status returns a job's status, falling back to the KV store for jobs
// this process no longer holds
func (m *Manager) Status(ctx context.Context, id string) (JobStatus, error) {
	m.mu.Lock()
	mj, ok := m.jobs[id]
	var st JobStatus
	if ok {
		st = mj.status
	}
	m.mu.Unlock()
	if ok {
		return st, nil
	}

	data, err := m.cfg.KV.Get(ctx, statusKey(id))
	if errors.Is(err, runtime.ErrNotFound) || (err == nil && len(data) == 0) {
		return JobStatus{}, ErrJobNotFound
	}
	if err != nil {
		return JobStatus{}, fmt.Errorf("load status %s: %w", id, err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return JobStatus{}, fmt.Errorf("decode status %s: %w", id, err)
	}
	return st, nil
}

// List returns the jobs this process still holds, oldest first
func (m *Manager) List() []JobStatus {
	m.mu.Lock()
	out := make([]JobStatus, 0, len(m.jobs))
	for _, mj := range m.jobs {
		out = append(out, mj.status)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Cancel asks a job to stop
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	mj, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	mj.ctrl.Cancel()
	return nil
}

// Subscribe streams status updates of a job. The channel starts with the
// current status, keeps only the latest pending update and closes once the
// job is terminal. Call the returned func to stop early.
func (m *Manager) Subscribe(id string) (<-chan JobStatus, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mj, ok := m.jobs[id]
	if !ok {
		return nil, nil, ErrJobNotFound
	}

	ch := make(chan JobStatus, 1)
	ch <- mj.status
	if mj.status.State.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	k := mj.nextSub
	mj.nextSub++
	mj.subs[k] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := mj.subs[k]; ok {
				close(c)
				delete(mj.subs, k)
			}
		})
	}, nil
}

// Wait blocks until the job is terminal or ctx is done. Evicted jobs answer
// from the KV store.
func (m *Manager) Wait(ctx context.Context, id string) (JobStatus, error) {
	m.mu.Lock()
	mj, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return m.Status(ctx, id)
	}
	select {
	case <-mj.ctrl.Done():
		return m.Status(ctx, id)
	case <-ctx.Done():
		return JobStatus{}, ctx.Err()
	}
}

// Document opens the finished PDF of a completed job
func (m *Manager) Document(ctx context.Context, id string) (io.ReadCloser, JobStatus, error) {
	st, err := m.Status(ctx, id)
	if err != nil {
		return nil, st, err
	}
	if st.State != Completed || st.Document == "" {
		return nil, st, ErrNotReady
	}
	rc, err := m.cfg.Documents.Get(ctx, st.Document)
	if err != nil {
		return nil, st, fmt.Errorf("open document %s: %w", st.Document, err)
	}
	return rc, st, nil
}

// Close cancels running jobs and waits for them to finish
func (m *Manager) Close() {
	m.stop()
	m.wg.Wait()
}
