package staging

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/metrics"
	"github.com/JakeFAU/lakeingest/internal/pipeline"
)

// Rejection reasons reported in lakeingest_records_rejected_total.
const (
	ReasonScalarPayload = "scalar_payload"
	ReasonNonObject     = "non_object_element"
)

// Reader implements pipeline.RawReader over the raw zone.
type Reader struct {
	objects pipeline.ObjectStore
	prefix  string
	logger  *zap.Logger
}

// NewReader creates a reader for objects under prefix.
func NewReader(objects pipeline.ObjectStore, prefix string, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{objects: objects, prefix: prefix, logger: logger}
}

// ListKeys returns every raw key for source, following page tokens until the
// listing is exhausted. Keys are returned in lexical order.
func (r *Reader) ListKeys(ctx context.Context, source string) ([]string, error) {
	prefix := SourcePrefix(r.prefix, source)
	var keys []string
	token := ""
	for {
		page, err := r.objects.ListObjects(ctx, prefix, token)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		keys = append(keys, page.Keys...)
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	sort.Strings(keys)
	return keys, nil
}

// Load fetches and flattens keys into records: each element of a list, a
// lone object as one record, nothing for null. Any object that is not valid
// JSON fails the whole batch.
func (r *Reader) Load(ctx context.Context, source string, keys []string) ([]pipeline.Record, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s: %w", source, pipeline.ErrNoRawObjects)
	}
	var records []pipeline.Record
	for _, key := range keys {
		data, err := r.objects.GetObject(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		payload, err := pipeline.DecodePayload(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		records = r.flatten(source, key, payload, records)
	}
	return records, nil
}

func (r *Reader) flatten(source, key string, payload pipeline.Payload, out []pipeline.Record) []pipeline.Record {
	switch v := payload.(type) {
	case nil:
		return out
	case map[string]any:
		return append(out, pipeline.Record(v))
	case []any:
		rejected := 0
		for _, elem := range v {
			obj, ok := elem.(map[string]any)
			if !ok {
				rejected++
				continue
			}
			out = append(out, pipeline.Record(obj))
		}
		if rejected > 0 {
			r.reject(source, key, ReasonNonObject, rejected)
		}
		return out
	default:
		r.reject(source, key, ReasonScalarPayload, 1)
		return out
	}
}

func (r *Reader) reject(source, key, reason string, n int) {
	metrics.ObserveRecordsRejected(source, reason, n)
	r.logger.Warn("Skipping non-object records",
		zap.String("source", source),
		zap.String("key", key),
		zap.String("reason", reason),
		zap.Int("count", n),
	)
}
