package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/pipeline"
	"github.com/JakeFAU/lakeingest/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type failingStore struct{}

func (failingStore) GetWatermark(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("db down")
}

func (failingStore) SetWatermark(context.Context, string, time.Time) error { return nil }

var now = time.Date(2025, 1, 2, 12, 30, 0, 0, time.UTC)

func TestResolveRelativeDefaultsTo24Hours(t *testing.T) {
	t.Parallel()

	r, err := NewResolver(Config{}, fixedClock{now}, nil, zap.NewNop())
	require.NoError(t, err)

	cp, err := r.Resolve(context.Background(), pipeline.Source{Name: "crm"})
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), cp.Watermark)
	assert.Equal(t, "2025-01-01T12:30:00Z", cp.UpdatedSince())
	assert.False(t, cp.Persisted)
	assert.False(t, r.Persisted())
}

func TestResolveRelativeHonorsLookbacks(t *testing.T) {
	t.Parallel()

	r, err := NewResolver(Config{DefaultLookbackHours: 6}, fixedClock{now}, nil, nil)
	require.NoError(t, err)

	cp, err := r.Resolve(context.Background(), pipeline.Source{Name: "crm"})
	require.NoError(t, err)
	assert.Equal(t, now.Add(-6*time.Hour), cp.Watermark)

	cp, err = r.Resolve(context.Background(), pipeline.Source{Name: "billing", LookbackHours: 48})
	require.NoError(t, err)
	assert.Equal(t, now.Add(-48*time.Hour), cp.Watermark)
}

func TestResolveConvertsToUTC(t *testing.T) {
	t.Parallel()

	local := now.In(time.FixedZone("EST", -5*3600))
	r, err := NewResolver(Config{}, fixedClock{local}, nil, nil)
	require.NoError(t, err)

	cp, err := r.Resolve(context.Background(), pipeline.Source{Name: "crm"})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, cp.Watermark.Location())
}

func TestResolvePersistedUsesStoreThenFallsBack(t *testing.T) {
	t.Parallel()

	store := memory.NewWatermarkStore()
	stored := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetWatermark(context.Background(), "crm", stored))

	r, err := NewResolver(Config{Mode: ModePersisted}, fixedClock{now}, store, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, r.Persisted())

	cp, err := r.Resolve(context.Background(), pipeline.Source{Name: "crm"})
	require.NoError(t, err)
	assert.Equal(t, stored, cp.Watermark)
	assert.True(t, cp.Persisted)

	cp, err = r.Resolve(context.Background(), pipeline.Source{Name: "billing"})
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), cp.Watermark)
	assert.False(t, cp.Persisted)
}

func TestResolvePersistedStoreError(t *testing.T) {
	t.Parallel()

	r, err := NewResolver(Config{Mode: ModePersisted}, fixedClock{now}, failingStore{}, nil)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), pipeline.Source{Name: "crm"})
	assert.ErrorContains(t, err, "db down")
}

func TestNewResolverValidation(t *testing.T) {
	t.Parallel()

	_, err := NewResolver(Config{Mode: ModePersisted}, fixedClock{now}, nil, nil)
	assert.Error(t, err)

	_, err = NewResolver(Config{Mode: "yesterday"}, fixedClock{now}, nil, nil)
	assert.Error(t, err)

	_, err = NewResolver(Config{}, nil, nil, nil)
	assert.Error(t, err)
}
