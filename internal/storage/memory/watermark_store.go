package memory

import (
	"context"
	"sync"
	"time"
)

// WatermarkStore keeps per-source watermarks in-memory for development/testing.
type WatermarkStore struct {
	mu         sync.RWMutex
	watermarks map[string]time.Time
}

// NewWatermarkStore constructs a WatermarkStore.
func NewWatermarkStore() *WatermarkStore {
	return &WatermarkStore{watermarks: make(map[string]time.Time)}
}

// GetWatermark returns the stored watermark for a source, if any.
func (s *WatermarkStore) GetWatermark(_ context.Context, source string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wm, ok := s.watermarks[source]
	return wm, ok, nil
}

// SetWatermark records the watermark for a source.
func (s *WatermarkStore) SetWatermark(_ context.Context, source string, watermark time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks[source] = watermark.UTC()
	return nil
}
