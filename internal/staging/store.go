package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/metrics"
	"github.com/JakeFAU/lakeingest/internal/pipeline"
)

const contentTypeJSON = "application/json"

// Store implements pipeline.RawStager. Every Stage call writes exactly one
// new object; existing objects are never rewritten.
type Store struct {
	objects pipeline.ObjectStore
	prefix  string
	clock   pipeline.Clock
	hasher  pipeline.Hasher
	logger  *zap.Logger

	mu   sync.Mutex
	last map[string]int64
}

// NewStore creates a raw staging store writing under prefix.
func NewStore(objects pipeline.ObjectStore, prefix string, clock pipeline.Clock, hasher pipeline.Hasher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		objects: objects,
		prefix:  prefix,
		clock:   clock,
		hasher:  hasher,
		logger:  logger,
		last:    make(map[string]int64),
	}
}

// nextUnix returns a per-source timestamp strictly greater than the last one
// handed out, so two stages within one second never collide.
func (s *Store) nextUnix(source string, unix int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.last[source]; ok && unix <= prev {
		unix = prev + 1
	}
	s.last[source] = unix
	return unix
}

// Stage serializes payload and writes it as one raw object.
func (s *Store) Stage(ctx context.Context, source string, payload pipeline.Payload) (pipeline.RawObject, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return pipeline.RawObject{}, fmt.Errorf("encode payload for %s: %w", source, err)
	}
	digest, err := s.hasher.Hash(body)
	if err != nil {
		return pipeline.RawObject{}, fmt.Errorf("hash payload for %s: %w", source, err)
	}

	fetchedAt := s.clock.Now().UTC()
	key := RawKey(s.prefix, source, fetchedAt, s.nextUnix(source, fetchedAt.Unix()))

	uri, err := s.objects.PutObject(ctx, key, contentTypeJSON, bytes.NewReader(body))
	if err != nil {
		return pipeline.RawObject{}, fmt.Errorf("put %s: %w", key, err)
	}

	obj := pipeline.RawObject{
		Source:        source,
		IngestionDate: fetchedAt.Format(dateLayout),
		FetchedAt:     fetchedAt,
		Key:           key,
		URI:           uri,
		Records:       pipeline.RecordCount(payload),
		Bytes:         len(body),
		SHA256:        digest,
	}
	metrics.ObserveRawObject(source, obj.Bytes)
	s.logger.Info("Staged raw object",
		zap.String("source", source),
		zap.Int("records", obj.Records),
		zap.String("key", key),
		zap.String("uri", uri),
		zap.String("sha256", digest),
	)
	return obj, nil
}
