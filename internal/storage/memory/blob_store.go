// Package memory stores objects in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/JakeFAU/lakeingest/internal/pipeline"
)

// DefaultPageSize bounds how many keys ListObjects returns per page.
const DefaultPageSize = 1000

// BlobStore stores objects in-memory and returns pseudo URIs.
type BlobStore struct {
	mu           sync.RWMutex
	data         map[string][]byte
	contentTypes map[string]string
	pageSize     int
	puts         int
}

// Option configures a BlobStore.
type Option func(*BlobStore)

// WithPageSize overrides the listing page size.
func WithPageSize(n int) Option {
	return func(s *BlobStore) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore(opts ...Option) *BlobStore {
	s := &BlobStore{
		data:         make(map[string][]byte),
		contentTypes: make(map[string]string),
		pageSize:     DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutObject persists the content and returns a URI.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = byteData
	s.contentTypes[path] = contentType
	s.puts++
	return uri(path), nil
}

// GetObject returns a copy of the stored bytes.
func (s *BlobStore) GetObject(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, pipeline.ErrObjectNotFound)
	}
	return append([]byte(nil), data...), nil
}

// ListObjects returns keys under prefix in lexical order. The page token is
// the offset of the next key, rendered as a decimal string.
func (s *BlobStore) ListObjects(_ context.Context, prefix string, pageToken string) (pipeline.ObjectPage, error) {
	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return pipeline.ObjectPage{}, fmt.Errorf("invalid page token %q", pageToken)
		}
		offset = n
	}

	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)

	if offset >= len(keys) {
		return pipeline.ObjectPage{}, nil
	}
	end := min(offset+s.pageSize, len(keys))
	page := pipeline.ObjectPage{Keys: keys[offset:end]}
	if end < len(keys) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// ContentType reports the content type recorded for a key.
func (s *BlobStore) ContentType(path string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contentTypes[path]
}

// Puts reports how many PutObject calls succeeded.
func (s *BlobStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

func uri(path string) string {
	return fmt.Sprintf("memory://%s", path)
}
