package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/metrics"
)

const stageTransform = "transform"

// DefaultProcessDate labels curated partitions when no process date is given.
const DefaultProcessDate = "manual"

// TransformConfig controls a Transformer.
type TransformConfig struct {
	Run         RunOptions
	ProcessDate string
	// Topic receives one notification per written partition. Empty disables
	// publishing.
	Topic string
}

// PartitionNotice is the message published after a partition is written.
type PartitionNotice struct {
	RunID       string    `json:"run_id"`
	Source      string    `json:"source"`
	ProcessDate string    `json:"process_date"`
	Key         string    `json:"key"`
	URI         string    `json:"uri"`
	Rows        int       `json:"rows"`
	SHA256      string    `json:"sha256"`
	WrittenAt   time.Time `json:"written_at"`
}

// Transformer rebuilds the curated partition of every source from the full
// set of staged raw objects.
type Transformer struct {
	reader     RawReader
	normalizer Normalizer
	writer     PartitionWriter
	publisher  Publisher
	clock      Clock
	ids        IDGenerator
	cfg        TransformConfig
	logger     *zap.Logger
}

// NewTransformer constructs a Transformer. publisher may be nil.
func NewTransformer(
	reader RawReader,
	normalizer Normalizer,
	writer PartitionWriter,
	publisher Publisher,
	clock Clock,
	ids IDGenerator,
	cfg TransformConfig,
	logger *zap.Logger,
) *Transformer {
	if cfg.ProcessDate == "" {
		cfg.ProcessDate = DefaultProcessDate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{
		reader:     reader,
		normalizer: normalizer,
		writer:     writer,
		publisher:  publisher,
		clock:      clock,
		ids:        ids,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run transforms the named sources in order and reports one outcome each.
func (t *Transformer) Run(ctx context.Context, sources []string) (RunReport, error) {
	runID, err := t.ids.NewID()
	if err != nil {
		return RunReport{}, fmt.Errorf("run id: %w", err)
	}
	report := RunReport{RunID: runID, Stage: stageTransform, StartedAt: t.clock.Now().UTC()}
	logger := t.logger.With(zap.String("run_id", runID), zap.String("process_date", t.cfg.ProcessDate))
	emitRunStart(t.cfg.Run.Events, report)

	report.Outcomes = runSources(ctx, sources, t.cfg.Run, func(ctx context.Context, i int) SourceOutcome {
		return t.transformSource(ctx, runID, sources[i], logger)
	})
	report.FinishedAt = t.clock.Now().UTC()

	for _, o := range report.Outcomes {
		metrics.ObserveSourceOutcome(stageTransform, o.Source, string(o.Status))
	}
	metrics.ObserveRun(stageTransform, report.FinishedAt.Sub(report.StartedAt))
	report.Log(logger)
	emitRunDone(t.cfg.Run.Events, report)
	return report, report.Err()
}

func (t *Transformer) transformSource(ctx context.Context, runID, source string, logger *zap.Logger) SourceOutcome {
	started := t.clock.Now()
	out := SourceOutcome{Source: source}
	done := func(status Status, err error) SourceOutcome {
		out.Status = status
		out.Err = err
		out.Duration = t.clock.Now().Sub(started)
		return out
	}

	keys, err := t.reader.ListKeys(ctx, source)
	if err != nil {
		return done(StatusFailed, fmt.Errorf("list raw objects: %w", err))
	}
	if len(keys) == 0 {
		logger.Info("No raw objects, skipping source", zap.String("source", source))
		return done(StatusSkipped, nil)
	}

	records, err := t.reader.Load(ctx, source, keys)
	if errors.Is(err, ErrNoRawObjects) {
		logger.Info("No raw objects, skipping source", zap.String("source", source))
		return done(StatusSkipped, nil)
	}
	if err != nil {
		return done(StatusFailed, fmt.Errorf("load raw objects: %w", err))
	}

	normalized, err := t.normalizer.Normalize(source, records)
	if err != nil {
		return done(StatusFailed, fmt.Errorf("normalize: %w", err))
	}

	part, err := t.writer.Write(ctx, source, t.cfg.ProcessDate, t.normalizer.SchemaFor(source), normalized)
	if err != nil {
		return done(StatusFailed, fmt.Errorf("write partition: %w", err))
	}
	if part == nil {
		logger.Info("No records after normalization, skipping source",
			zap.String("source", source),
			zap.Int("raw_objects", len(keys)),
		)
		return done(StatusSkipped, nil)
	}
	out.Key = part.Key
	out.Records = part.Rows

	if err := t.notify(ctx, runID, part, logger); err != nil {
		return done(StatusFailed, err)
	}
	return done(StatusSucceeded, nil)
}

func (t *Transformer) notify(ctx context.Context, runID string, part *CuratedPartition, logger *zap.Logger) error {
	if t.cfg.Topic == "" || t.publisher == nil {
		return nil
	}
	notice := PartitionNotice{
		RunID:       runID,
		Source:      part.Source,
		ProcessDate: part.ProcessDate,
		Key:         part.Key,
		URI:         part.URI,
		Rows:        part.Rows,
		SHA256:      part.SHA256,
		WrittenAt:   part.WrittenAt,
	}
	id, err := t.publisher.Publish(ctx, t.cfg.Topic, notice)
	if err != nil {
		return fmt.Errorf("publish partition notice: %w", err)
	}
	logger.Info("Partition published",
		zap.String("source", part.Source),
		zap.String("uri", part.URI),
		zap.String("message_id", id),
	)
	return nil
}
