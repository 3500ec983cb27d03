package checkpoint

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lakeingest/internal/storage/memory"
)

func TestObjectWatermarkStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := memory.NewBlobStore()
	store := NewObjectWatermarkStore(blobs, "state/checkpoints", fixedClock{now})

	_, ok, err := store.GetWatermark(ctx, "crm")
	require.NoError(t, err)
	assert.False(t, ok)

	wm := time.Date(2025, 1, 2, 7, 0, 0, 0, time.FixedZone("x", 3600))
	require.NoError(t, store.SetWatermark(ctx, "crm", wm))
	assert.Equal(t, "state/checkpoints/crm.json", store.Key("crm"))
	assert.Equal(t, "application/json", blobs.ContentType("state/checkpoints/crm.json"))

	got, ok, err := store.GetWatermark(ctx, "crm")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(wm))
	assert.Equal(t, time.UTC, got.Location())

	raw, err := blobs.GetObject(ctx, "state/checkpoints/crm.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":"crm","watermark":"2025-01-02T06:00:00Z","updated_at":"2025-01-02T12:30:00Z"}`, string(raw))
}

func TestObjectWatermarkStoreCorruptObject(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := memory.NewBlobStore()
	_, err := blobs.PutObject(ctx, "checkpoints/crm.json", "", bytes.NewReader([]byte("not json")))
	require.NoError(t, err)

	_, _, err = NewObjectWatermarkStore(blobs, "", fixedClock{now}).GetWatermark(ctx, "crm")
	assert.Error(t, err)
}
