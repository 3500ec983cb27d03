package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if fetchAttemptsTotal == nil || rawObjectsTotal == nil ||
		curatedRowsTotal == nil || sourceOutcomesTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetchAttempt(t *testing.T) {
	Init()
	counter := fetchAttemptsTotal.WithLabelValues("metrics-test", "retry")
	before := testutil.ToFloat64(counter)

	ObserveFetchAttempt("metrics-test", "retry")
	ObserveFetchAttempt("metrics-test", "retry")

	if got := testutil.ToFloat64(counter); got != before+2 {
		t.Errorf("expected %v retries, got %v", before+2, got)
	}
}

func TestObserveRawObjectSkipsZeroBytes(t *testing.T) {
	Init()
	bytesCounter := rawBytesTotal.WithLabelValues("metrics-empty")
	objects := rawObjectsTotal.WithLabelValues("metrics-empty")

	ObserveRawObject("metrics-empty", 0)
	ObserveRawObject("metrics-empty", 128)

	if got := testutil.ToFloat64(objects); got != 2 {
		t.Errorf("expected 2 raw objects, got %v", got)
	}
	if got := testutil.ToFloat64(bytesCounter); got != 128 {
		t.Errorf("expected 128 bytes, got %v", got)
	}
}

func TestObservePartition(t *testing.T) {
	ObservePartition("metrics-part", 7)

	if got := testutil.ToFloat64(partitionsWrittenTotal.WithLabelValues("metrics-part")); got != 1 {
		t.Errorf("expected 1 partition, got %v", got)
	}
	if got := testutil.ToFloat64(curatedRowsTotal.WithLabelValues("metrics-part")); got != 7 {
		t.Errorf("expected 7 rows, got %v", got)
	}
}

func TestObserveRecordsRejectedIgnoresNonPositive(t *testing.T) {
	ObserveRecordsRejected("metrics-reject", "scalar", 0)
	ObserveRecordsRejected("metrics-reject", "scalar", 3)

	if got := testutil.ToFloat64(recordsRejectedTotal.WithLabelValues("metrics-reject", "scalar")); got != 3 {
		t.Errorf("expected 3 rejected, got %v", got)
	}
}

func TestObserveRun(t *testing.T) {
	ObserveRun("metrics-stage", 2*time.Second)

	if got := testutil.CollectAndCount(runDurationSeconds); got == 0 {
		t.Error("expected run duration series to be collected")
	}
}

func TestObserveRateLimitDelay(t *testing.T) {
	Init()
	before := testutil.CollectAndCount(rateLimitDelaySeconds)

	ObserveRateLimitDelay("metrics-limit.example", 250*time.Millisecond)

	if got := testutil.CollectAndCount(rateLimitDelaySeconds); got != before+1 {
		t.Errorf("expected %d series, got %d", before+1, got)
	}
}
