//go:build !cloudflare

package runtime

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPStorage implements Storage against an S3-style HTTP endpoint, such as an R2
// bucket behind a public URL or an authenticating gateway
type HTTPStorage struct {
	endpoint string
	bucket   string
	token    string
	client   *http.Client
}

// HTTPStorageConfig configures HTTPStorage
type HTTPStorageConfig struct {
	// Endpoint is the service root, e.g. https://<account>.r2.cloudflarestorage.com
	Endpoint string
	Bucket   string
	// Token is sent as a bearer token when set
	Token  string
	Client *http.Client
}

// NewHTTPStorage creates HTTP-backed storage
func NewHTTPStorage(cfg HTTPStorageConfig) *HTTPStorage {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStorage{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		bucket:   cfg.Bucket,
		token:    cfg.Token,
		client:   client,
	}
}

func (s *HTTPStorage) url(key string) string {
	if s.bucket == "" {
		return s.endpoint + "/" + key
	}
	return s.endpoint + "/" + s.bucket + "/" + key
}

func (s *HTTPStorage) do(ctx context.Context, method, u string, body []byte, contentType string) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return s.client.Do(req)
}

func (s *HTTPStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.do(ctx, http.MethodGet, s.url(key), nil, "")
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNotFound
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s failed: %s", key, resp.Status)
	}
}

func (s *HTTPStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	resp, err := s.do(ctx, http.MethodPut, s.url(key), data, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("PUT %s failed: %s", key, resp.Status)
	}
	return nil
}

// List uses the ListObjectsV2 query API
func (s *HTTPStorage) List(ctx context.Context, prefix string) ([]string, error) {
	q := url.Values{"list-type": {"2"}}
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	u := s.endpoint + "/" + s.bucket + "?" + q.Encode()
	if s.bucket == "" {
		u = s.endpoint + "/?" + q.Encode()
	}

	resp, err := s.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("LIST failed: %s", resp.Status)
	}

	var listing struct {
		Contents []struct {
			Key string `xml:"Key"`
		} `xml:"Contents"`
	}
	if err := xml.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	keys := make([]string, len(listing.Contents))
	for i, c := range listing.Contents {
		keys[i] = c.Key
	}
	return keys, nil
}

func (s *HTTPStorage) Delete(ctx context.Context, key string) error {
	resp, err := s.do(ctx, http.MethodDelete, s.url(key), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return fmt.Errorf("DELETE %s failed: %s", key, resp.Status)
}
