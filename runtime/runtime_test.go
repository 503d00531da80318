//go:build !js && !tinygo && !cloudflare

package runtime

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/dashdeck/pkg/pipeline"
)

func readAll(t *testing.T, s Storage, key string) string {
	t.Helper()
	rc, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func exerciseStorage(t *testing.T, s Storage) {
	ctx := context.Background()

	_, err := s.Get(ctx, "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "exports/a.pdf", []byte("A"), "application/pdf"))
	require.NoError(t, s.Put(ctx, "exports/b.pdf", []byte("B"), "application/pdf"))
	require.NoError(t, s.Put(ctx, "themes/t.dsh", []byte("T"), "text/plain"))
	assert.Equal(t, "A", readAll(t, s, "exports/a.pdf"))

	keys, err := s.List(ctx, "exports/")
	require.NoError(t, err)
	assert.Equal(t, []string{"exports/a.pdf", "exports/b.pdf"}, keys)

	require.NoError(t, s.Delete(ctx, "exports/a.pdf"))
	require.NoError(t, s.Delete(ctx, "exports/a.pdf"))
	_, err = s.Get(ctx, "exports/a.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func exerciseKV(t *testing.T, kv KVStore) {
	ctx := context.Background()

	_, err := kv.Get(ctx, "status:x")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Put(ctx, "status:x", []byte(`{"state":"running"}`)))
	v, err := kv.Get(ctx, "status:x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"running"}`, string(v))

	require.NoError(t, kv.Delete(ctx, "status:x"))
	_, err = kv.Get(ctx, "status:x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	exerciseStorage(t, s)
	assert.Equal(t, "text/plain", s.ContentType("themes/t.dsh"))
}

func TestLocalFileStorage(t *testing.T) {
	s, err := NewLocalFileStorage(t.TempDir())
	require.NoError(t, err)
	exerciseStorage(t, s)
}

func TestLocalFileStorageRejectsEscape(t *testing.T) {
	s, err := NewLocalFileStorage(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"../etc/passwd", "a/../../b", ".."} {
		_, err := s.FullPath(key)
		assert.Error(t, err, key)
	}
	p, err := s.FullPath("a/./b.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, "b.pdf"))
}

// s3Fake serves a bucket from a map using path-style URLs
func s3Fake(t *testing.T, token string) *httptest.Server {
	var mu sync.Mutex
	objects := map[string]string{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		key := strings.TrimPrefix(r.URL.Path, "/bucket/")
		switch {
		case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
			prefix := r.URL.Query().Get("prefix")
			var b strings.Builder
			b.WriteString("<ListBucketResult>")
			for _, k := range []string{"exports/a.pdf", "exports/b.pdf", "themes/t.dsh"} {
				if _, ok := objects[k]; ok && strings.HasPrefix(k, prefix) {
					b.WriteString("<Contents><Key>" + k + "</Key></Contents>")
				}
			}
			b.WriteString("</ListBucketResult>")
			io.WriteString(w, b.String())
		case r.Method == http.MethodGet:
			v, ok := objects[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			io.WriteString(w, v)
		case r.Method == http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			objects[key] = string(b)
		case r.Method == http.MethodDelete:
			delete(objects, key)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
}

func TestHTTPStorage(t *testing.T) {
	srv := s3Fake(t, "secret")
	defer srv.Close()

	exerciseStorage(t, NewHTTPStorage(HTTPStorageConfig{Endpoint: srv.URL + "/", Bucket: "bucket", Token: "secret"}))

	denied := NewHTTPStorage(HTTPStorageConfig{Endpoint: srv.URL, Bucket: "bucket"})
	assert.Error(t, denied.Put(context.Background(), "x", []byte("x"), ""))
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemoryKV())
}

func TestBadgerKV(t *testing.T) {
	kv, err := OpenBadgerKV("", nil)
	require.NoError(t, err)
	defer kv.Close()
	exerciseKV(t, kv)

	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, "status:1", []byte("{}")))
	require.NoError(t, kv.Put(ctx, "status:2", []byte("{}")))
	require.NoError(t, kv.Put(ctx, "other", []byte("{}")))
	keys, err := kv.Keys(ctx, "status:")
	require.NoError(t, err)
	assert.Equal(t, []string{"status:1", "status:2"}, keys)
}

func TestBadgerKVOnDisk(t *testing.T) {
	dir := t.TempDir()
	kv, err := OpenBadgerKV(dir, nil)
	require.NoError(t, err)
	require.NoError(t, kv.Put(context.Background(), "k", []byte("v")))
	require.NoError(t, kv.Close())

	kv, err = OpenBadgerKV(dir, nil)
	require.NoError(t, err)
	defer kv.Close()
	v, err := kv.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
}

func TestDefaults(t *testing.T) {
	prev := Current
	defer SetRuntime(prev)

	SetRuntime(nil)
	_, err := Themes().Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, Documents().Put(context.Background(), "x", nil, ""))
	_, err = KV().Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)

	mem := NewMemoryStorage()
	SetRuntime(&Runtime{Documents: mem})
	assert.Same(t, mem, Documents())
}

func TestNewCapturer(t *testing.T) {
	c, release, err := NewCapturer(context.Background(), pipeline.Options{})
	require.NoError(t, err)
	defer release()
	assert.NotNil(t, c)

	_, _, err = NewCapturer(context.Background(), pipeline.Options{Backend: "vnc"})
	assert.Error(t, err)
}
