package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 2, MaxBatchWait: time.Minute}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(runStart("run-1"))
	hub.Emit(sourceDone("run-1", "crm"))
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 10, MaxBatchWait: 25 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(runStart("run-1"))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitNonBlockingWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{events: make(chan Event), logger: zap.NewNop()}
	start := time.Now()
	hub.Emit(runStart("run-1"))
	hub.Emit(runStart("run-2"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int64(1), hub.Dropped())
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 100, MaxBatchWait: time.Minute}, sink)

	hub.Emit(runStart("run-1"))
	hub.Emit(sourceDone("run-1", "crm"))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	assert.Len(t, sink.Batches()[0], 2)
	assert.True(t, sink.Closed())

	hub.Emit(runStart("run-2"))
	require.NoError(t, hub.Close(context.Background()))
	assert.Len(t, sink.Batches(), 1)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)

	hub.Emit(Event{Kind: KindRunStart, TS: time.Now()})
	hub.Emit(Event{RunID: "run-1", Kind: KindSourceDone, TS: time.Now()})
	require.NoError(t, hub.Close(context.Background()))
	assert.Empty(t, sink.Batches())
}

func TestHubKeepsFlushingAfterSinkError(t *testing.T) {
	t.Parallel()

	failing := sinkFunc(func(context.Context, []Event) error { return errors.New("db down") })
	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, failing, sink)

	hub.Emit(runStart("run-1"))
	hub.Emit(runStart("run-2"))
	require.NoError(t, hub.Close(context.Background()))
	assert.Len(t, sink.Batches(), 2)
}

func TestHubNilIsSafe(t *testing.T) {
	var hub *Hub
	hub.Emit(runStart("run-1"))
	assert.NoError(t, hub.Close(context.Background()))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name    string
		evt     Event
		wantErr string
	}{
		{name: "run start", evt: Event{RunID: "r", Kind: KindRunStart, TS: now}},
		{name: "source done", evt: Event{RunID: "r", Kind: KindSourceDone, TS: now, Source: "crm", Status: "succeeded"}},
		{name: "run done", evt: Event{RunID: "r", Kind: KindRunDone, TS: now, Status: RunFailed}},
		{name: "missing run id", evt: Event{Kind: KindRunStart, TS: now}, wantErr: "run id"},
		{name: "missing timestamp", evt: Event{RunID: "r", Kind: KindRunStart}, wantErr: "timestamp"},
		{name: "unknown kind", evt: Event{RunID: "r", Kind: "NOPE", TS: now}, wantErr: "unknown kind"},
		{name: "source done without source", evt: Event{RunID: "r", Kind: KindSourceDone, TS: now, Status: "failed"}, wantErr: "requires source"},
		{name: "run done bad status", evt: Event{RunID: "r", Kind: KindRunDone, TS: now, Status: "skipped"}, wantErr: "invalid status"},
		{name: "negative duration", evt: Event{RunID: "r", Kind: KindRunStart, TS: now, Dur: -1}, wantErr: "duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.evt.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	copy(out, s.batches)
	return out
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func runStart(runID string) Event {
	return Event{RunID: runID, Stage: "ingest", Kind: KindRunStart, TS: time.Now()}
}

func sourceDone(runID, source string) Event {
	return Event{RunID: runID, Stage: "ingest", Kind: KindSourceDone, TS: time.Now(), Source: source, Status: "succeeded"}
}
