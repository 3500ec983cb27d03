package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/lakeingest/internal/pipeline"
	"github.com/JakeFAU/lakeingest/internal/progress"
)

var now = time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

// fakeFetcher answers by URL and records every request it sees.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]pipeline.Payload
	failures  map[string]error
	requests  []pipeline.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req pipeline.FetchRequest) (pipeline.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err, ok := f.failures[req.URL]; ok {
		return nil, err
	}
	if payload, ok := f.responses[req.URL]; ok {
		return payload, nil
	}
	return nil, fmt.Errorf("unexpected url %s", req.URL)
}

func (f *fakeFetcher) Requests() []pipeline.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pipeline.FetchRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// recordingEmitter keeps every emitted event in order.
type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}
