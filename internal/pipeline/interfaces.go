package pipeline

import (
	"context"
	"io"
	"time"
)

// ObjectPage is one page of keys returned by ObjectStore.ListObjects. An
// empty NextPageToken means the listing is complete.
type ObjectPage struct {
	Keys          []string
	NextPageToken string
}

// ObjectStore is the bucket-style storage every stage reads and writes.
type ObjectStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
	ListObjects(ctx context.Context, prefix string, pageToken string) (ObjectPage, error)
}

// FetchRequest captures everything needed for one logical API fetch.
type FetchRequest struct {
	Source      string
	URL         string
	Headers     map[string]string
	Query       map[string]string
	MaxAttempts int
}

// Fetcher performs a single logical fetch with its own retry budget.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (Payload, error)
}

// CheckpointResolver computes the fetch watermark for a source.
type CheckpointResolver interface {
	Resolve(ctx context.Context, source Source) (Checkpoint, error)
}

// WatermarkStore persists the last successfully staged watermark per source.
type WatermarkStore interface {
	GetWatermark(ctx context.Context, source string) (time.Time, bool, error)
	SetWatermark(ctx context.Context, source string, watermark time.Time) error
}

// RawStager writes one immutable raw object per call.
type RawStager interface {
	Stage(ctx context.Context, source string, payload Payload) (RawObject, error)
}

// RawReader enumerates and loads staged raw objects for a source.
type RawReader interface {
	ListKeys(ctx context.Context, source string) ([]string, error)
	Load(ctx context.Context, source string, keys []string) ([]Record, error)
}

// Normalizer applies the per-source rule to every record.
type Normalizer interface {
	Normalize(source string, records []Record) ([]Record, error)
	SchemaFor(source string) Schema
}

// PartitionWriter persists a curated partition. A nil partition with a nil
// error means the input was empty and nothing was written.
type PartitionWriter interface {
	Write(ctx context.Context, source, processDate string, schema Schema, records []Record) (*CuratedPartition, error)
}

// Publisher pushes completion events downstream.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Hasher produces content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
