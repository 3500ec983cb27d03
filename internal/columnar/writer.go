// Package columnar converts normalized records into Parquet partitions in the
// curated zone.
package columnar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/metrics"
	"github.com/JakeFAU/lakeingest/internal/pipeline"
)

const (
	contentTypeParquet = "application/vnd.apache.parquet"
	objectName         = "data.parquet"
	createdBy          = "lakeingest"
)

// CuratedKey builds {prefix}/{source}/dt={processDate}/data.parquet.
func CuratedKey(prefix, source, processDate string) string {
	return fmt.Sprintf("%s/%s/dt=%s/%s", strings.Trim(prefix, "/"), source, processDate, objectName)
}

// ParseCompression maps a config value onto a Parquet codec.
func ParseCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unknown compression %q", name)
	}
}

// Writer implements pipeline.PartitionWriter.
type Writer struct {
	objects pipeline.ObjectStore
	prefix  string
	codec   compress.Compression
	clock   pipeline.Clock
	hasher  pipeline.Hasher
	logger  *zap.Logger
	alloc   memory.Allocator
}

// NewWriter creates a writer that puts partitions under prefix.
func NewWriter(
	objects pipeline.ObjectStore,
	prefix string,
	compression string,
	clock pipeline.Clock,
	hasher pipeline.Hasher,
	logger *zap.Logger,
) (*Writer, error) {
	codec, err := ParseCompression(compression)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		objects: objects,
		prefix:  prefix,
		codec:   codec,
		clock:   clock,
		hasher:  hasher,
		logger:  logger,
		alloc:   memory.NewGoAllocator(),
	}, nil
}

// Write encodes records as one Parquet object and replaces whatever was at
// the partition key. Empty input writes nothing and returns nil, nil.
func (w *Writer) Write(
	ctx context.Context,
	source, processDate string,
	declared pipeline.Schema,
	records []pipeline.Record,
) (*pipeline.CuratedPartition, error) {
	if len(records) == 0 {
		return nil, nil
	}

	cols, err := inferColumns(declared, records)
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", source, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("schema for %s: %w: records carry no fields", source, pipeline.ErrSchemaViolation)
	}

	data, err := w.encode(cols, records)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", source, err)
	}
	digest, err := w.hasher.Hash(data)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", source, err)
	}

	key := CuratedKey(w.prefix, source, processDate)
	uri, err := w.objects.PutObject(ctx, key, contentTypeParquet, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", key, err)
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	part := &pipeline.CuratedPartition{
		Source:      source,
		ProcessDate: processDate,
		Key:         key,
		URI:         uri,
		Rows:        len(records),
		Columns:     names,
		Bytes:       len(data),
		SHA256:      digest,
		WrittenAt:   w.clock.Now().UTC(),
	}
	metrics.ObservePartition(source, part.Rows)
	w.logger.Info("Wrote curated partition",
		zap.String("source", source),
		zap.String("process_date", processDate),
		zap.String("key", key),
		zap.String("uri", uri),
		zap.Int("rows", part.Rows),
		zap.Int("columns", len(cols)),
		zap.String("sha256", digest),
	)
	return part, nil
}

func (w *Writer) encode(cols []column, records []pipeline.Record) ([]byte, error) {
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{Name: c.name, Type: c.arrowType(), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(w.alloc, schema)
	defer b.Release()

	for i, c := range cols {
		fb := b.Field(i)
		for _, rec := range records {
			if err := appendValue(fb, c, rec[c.name]); err != nil {
				return nil, fmt.Errorf("column %q: %w", c.name, err)
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(w.codec),
		parquet.WithDictionaryDefault(true),
		parquet.WithCreatedBy(createdBy),
		parquet.WithAllocator(w.alloc),
	)

	var buf bytes.Buffer
	writer, err := pqarrow.NewFileWriter(schema, &buf, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to write parquet record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func appendValue(fb array.Builder, c column, v any) error {
	if v == nil {
		fb.AppendNull()
		return nil
	}
	switch c.kind {
	case kindBool:
		bv, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: want bool, got %T", pipeline.ErrSchemaViolation, v)
		}
		fb.(*array.BooleanBuilder).Append(bv)
	case kindInt64:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		fb.(*array.Int64Builder).Append(n)
	case kindFloat64:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		fb.(*array.Float64Builder).Append(f)
	case kindString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: want string, got %T", pipeline.ErrSchemaViolation, v)
		}
		fb.(*array.StringBuilder).Append(s)
	default:
		if s, ok := v.(string); ok {
			fb.(*array.StringBuilder).Append(s)
			return nil
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode json value: %w", err)
		}
		fb.(*array.StringBuilder).Append(string(encoded))
	}
	return nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an int64", pipeline.ErrSchemaViolation, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: want int64, got %T", pipeline.ErrSchemaViolation, v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", pipeline.ErrSchemaViolation, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: want float64, got %T", pipeline.ErrSchemaViolation, v)
	}
}
