package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/JakeFAU/lakeingest/internal/pipeline"
)

// ObjectWatermarkStore keeps one small JSON object per source in the same
// object store the raw zone lives in.
type ObjectWatermarkStore struct {
	store  pipeline.ObjectStore
	prefix string
	clock  pipeline.Clock
}

type watermarkDoc struct {
	Source    string    `json:"source"`
	Watermark time.Time `json:"watermark"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewObjectWatermarkStore stores watermarks under prefix.
func NewObjectWatermarkStore(store pipeline.ObjectStore, prefix string, clock pipeline.Clock) *ObjectWatermarkStore {
	if prefix == "" {
		prefix = "checkpoints"
	}
	return &ObjectWatermarkStore{store: store, prefix: prefix, clock: clock}
}

// Key returns the object key holding a source's watermark.
func (s *ObjectWatermarkStore) Key(source string) string {
	return path.Join(s.prefix, source+".json")
}

// GetWatermark returns the stored watermark for a source, if any.
func (s *ObjectWatermarkStore) GetWatermark(ctx context.Context, source string) (time.Time, bool, error) {
	data, err := s.store.GetObject(ctx, s.Key(source))
	if errors.Is(err, pipeline.ErrObjectNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	var doc watermarkDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return time.Time{}, false, fmt.Errorf("decode watermark %s: %w", s.Key(source), err)
	}
	if doc.Watermark.IsZero() {
		return time.Time{}, false, nil
	}
	return doc.Watermark.UTC(), true, nil
}

// SetWatermark overwrites the watermark object for a source.
func (s *ObjectWatermarkStore) SetWatermark(ctx context.Context, source string, watermark time.Time) error {
	doc := watermarkDoc{Source: source, Watermark: watermark.UTC(), UpdatedAt: s.clock.Now().UTC()}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode watermark: %w", err)
	}
	if _, err := s.store.PutObject(ctx, s.Key(source), "application/json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save watermark %s: %w", s.Key(source), err)
	}
	return nil
}
