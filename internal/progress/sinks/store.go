package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/progress"
	"github.com/JakeFAU/lakeingest/internal/store"
)

// StoreSink persists run events through a store.RunHistory.
type StoreSink struct {
	history store.RunHistory
	logger  *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided history backend.
func NewStoreSink(history store.RunHistory, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{history: history, logger: logger}
}

// Consume applies events in order. The first repository error aborts the
// rest of the batch.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.history == nil {
		return nil
	}
	for _, evt := range batch {
		if err := s.apply(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) apply(ctx context.Context, evt progress.Event) error {
	switch evt.Kind {
	case progress.KindRunStart:
		if err := s.history.StartRun(ctx, evt.RunID, evt.Stage, evt.TS); err != nil {
			return fmt.Errorf("start run %s: %w", evt.RunID, err)
		}
	case progress.KindSourceDone:
		if err := s.history.RecordSource(ctx, store.SourceRun{
			RunID:        evt.RunID,
			Source:       evt.Source,
			Status:       evt.Status,
			Records:      evt.Records,
			Key:          evt.Key,
			Duration:     evt.Dur,
			ErrorMessage: note(evt),
			RecordedAt:   evt.TS,
		}); err != nil {
			return fmt.Errorf("record source %s/%s: %w", evt.RunID, evt.Source, err)
		}
	case progress.KindRunDone:
		status := store.RunSucceeded
		if evt.Status == progress.RunFailed {
			status = store.RunFailed
		}
		if err := s.history.FinishRun(ctx, evt.RunID, evt.TS, status, note(evt)); err != nil {
			return fmt.Errorf("finish run %s: %w", evt.RunID, err)
		}
	default:
		s.logger.Debug("Ignoring run event", zap.String("kind", string(evt.Kind)))
	}
	return nil
}

// Close implements progress.Sink; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func note(evt progress.Event) *string {
	if evt.Note == "" {
		return nil
	}
	n := evt.Note
	return &n
}
