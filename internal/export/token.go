package export

import (
	"sync"
	"sync/atomic"
)

// cancelToken is the per-job cancellation signal. It is polled at stage
// boundaries and its channel wakes settle waits.
type cancelToken struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

func newCancelToken() *cancelToken {
	return &cancelToken{done: make(chan struct{})}
}

func (t *cancelToken) cancel() {
	t.once.Do(func() {
		t.set.Store(true)
		close(t.done)
	})
}

func (t *cancelToken) cancelled() bool {
	return t.set.Load()
}
