// Package runtime binds the export pipeline to platform storage: where themes are
// read from, where finished documents go and where job status is kept
package runtime

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned by Get when a key does not exist
var ErrNotFound = errors.New("not found")

// Storage abstracts object storage (local directory, R2, memory)
type Storage interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// KVStore abstracts key-value storage for job status
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Runtime holds the platform-specific dependencies
type Runtime struct {
	// Themes is where decksh theme files are read from
	Themes Storage
	// Documents receives finished PDFs
	Documents Storage
	// KV keeps job status
	KV KVStore
}

// Current is set by platform-specific init
var Current *Runtime

// SetRuntime sets the global runtime
func SetRuntime(r *Runtime) {
	Current = r
}

// Themes returns the theme storage
func Themes() Storage {
	if Current == nil || Current.Themes == nil {
		return noopStorage{}
	}
	return Current.Themes
}

// Documents returns the document storage
func Documents() Storage {
	if Current == nil || Current.Documents == nil {
		return noopStorage{}
	}
	return Current.Documents
}

// KV returns the KV store
func KV() KVStore {
	if Current == nil || Current.KV == nil {
		return noopKV{}
	}
	return Current.KV
}

// noopStorage is used when storage isn't configured
type noopStorage struct{}

func (noopStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, ErrNotFound
}

func (noopStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return nil
}

func (noopStorage) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}

func (noopStorage) Delete(ctx context.Context, key string) error {
	return nil
}

// noopKV is used when KV isn't configured
type noopKV struct{}

func (noopKV) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrNotFound
}

func (noopKV) Put(ctx context.Context, key string, value []byte) error {
	return nil
}

func (noopKV) Delete(ctx context.Context, key string) error {
	return nil
}

// MemoryStorage keeps objects in a map. Used by WASM builds and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *MemoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (s *MemoryStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	s.types[key] = contentType
	return nil
}

func (s *MemoryStorage) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.types, key)
	return nil
}

// ContentType returns the content type stored with key
func (s *MemoryStorage) ContentType(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.types[key]
}

// MemoryKV is a map-backed KVStore
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string][]byte)}
}

func (k *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (k *MemoryKV) Put(ctx context.Context, key string, value []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.values[key] = append([]byte(nil), value...)
	return nil
}

func (k *MemoryKV) Delete(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.values, key)
	return nil
}
