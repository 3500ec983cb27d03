package staging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/lakeingest/internal/pipeline"
	"github.com/JakeFAU/lakeingest/internal/storage/memory"
)

func TestListKeysFollowsPages(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore(memory.WithPageSize(2))
	for _, k := range []string{
		"raw/crm/dt=2025-01-02/5.json",
		"raw/crm/dt=2025-01-01/1.json",
		"raw/crm/dt=2025-01-01/2.json",
		"raw/crm/dt=2025-01-02/3.json",
		"raw/crm_archive/dt=2025-01-01/9.json",
		"raw/billing/dt=2025-01-01/1.json",
	} {
		putRaw(t, blobs, k, "[]")
	}

	keys, err := NewReader(blobs, "raw", nil).ListKeys(context.Background(), "crm")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"raw/crm/dt=2025-01-01/1.json",
		"raw/crm/dt=2025-01-01/2.json",
		"raw/crm/dt=2025-01-02/3.json",
		"raw/crm/dt=2025-01-02/5.json",
	}, keys)
}

func TestListKeysEmpty(t *testing.T) {
	t.Parallel()

	keys, err := NewReader(memory.NewBlobStore(), "raw", nil).ListKeys(context.Background(), "crm")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLoadFlattensPayloads(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	putRaw(t, blobs, "raw/crm/a.json", `[{"id":"1"},{"id":"2"}]`)
	putRaw(t, blobs, "raw/crm/b.json", `{"id":"3"}`)
	putRaw(t, blobs, "raw/crm/c.json", `null`)
	putRaw(t, blobs, "raw/crm/d.json", `[]`)

	records, err := NewReader(blobs, "raw", nil).Load(context.Background(), "crm",
		[]string{"raw/crm/a.json", "raw/crm/b.json", "raw/crm/c.json", "raw/crm/d.json"})
	require.NoError(t, err)
	assert.Equal(t, []pipeline.Record{{"id": "1"}, {"id": "2"}, {"id": "3"}}, records)
}

func TestLoadRejectsNonObjects(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	blobs := memory.NewBlobStore()
	putRaw(t, blobs, "raw/reject_src/a.json", `[{"id":"1"}, 7, "x", {"id":"2"}]`)
	putRaw(t, blobs, "raw/reject_src/b.json", `42`)

	records, err := NewReader(blobs, "raw", zap.New(core)).Load(context.Background(), "reject_src",
		[]string{"raw/reject_src/a.json", "raw/reject_src/b.json"})
	require.NoError(t, err)
	assert.Equal(t, []pipeline.Record{{"id": "1"}, {"id": "2"}}, records)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, ReasonNonObject, entries[0].ContextMap()["reason"])
	assert.Equal(t, int64(2), entries[0].ContextMap()["count"])
	assert.Equal(t, ReasonScalarPayload, entries[1].ContextMap()["reason"])
}

func TestLoadMalformedObjectFailsBatch(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	putRaw(t, blobs, "raw/crm/a.json", `[{"id":"1"}]`)
	putRaw(t, blobs, "raw/crm/b.json", `[{"id":`)

	_, err := NewReader(blobs, "raw", nil).Load(context.Background(), "crm", []string{"raw/crm/a.json", "raw/crm/b.json"})
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrMalformedPayload)
	assert.Contains(t, err.Error(), "raw/crm/b.json")
}

func TestLoadNoKeys(t *testing.T) {
	t.Parallel()

	_, err := NewReader(memory.NewBlobStore(), "raw", nil).Load(context.Background(), "crm", nil)
	assert.ErrorIs(t, err, pipeline.ErrNoRawObjects)
}

func TestLoadMissingObject(t *testing.T) {
	t.Parallel()

	_, err := NewReader(memory.NewBlobStore(), "raw", nil).Load(context.Background(), "crm", []string{"raw/crm/gone.json"})
	assert.ErrorIs(t, err, pipeline.ErrObjectNotFound)
}
