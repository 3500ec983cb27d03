package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lakeingest/internal/pipeline"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "raw/crm/a.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://raw/crm/a.json", uri)

	payload[0] = 'C'
	got, err := store.GetObject(context.Background(), "raw/crm/a.json")
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))
	assert.Equal(t, "application/json", store.ContentType("raw/crm/a.json"))
	assert.Equal(t, 1, store.Puts())
}

func TestBlobStoreGetMissing(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().GetObject(context.Background(), "nope")
	assert.ErrorIs(t, err, pipeline.ErrObjectNotFound)
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestBlobStoreListObjectsPaginates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewBlobStore(WithPageSize(2))
	for _, k := range []string{"raw/crm/3.json", "raw/crm/1.json", "raw/billing/1.json", "raw/crm/2.json", "raw/crm/4.json", "raw/crm/5.json"} {
		_, err := store.PutObject(ctx, k, "", bytes.NewReader([]byte("{}")))
		require.NoError(t, err)
	}

	var keys []string
	token := ""
	pages := 0
	for {
		page, err := store.ListObjects(ctx, "raw/crm/", token)
		require.NoError(t, err)
		pages++
		keys = append(keys, page.Keys...)
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"raw/crm/1.json", "raw/crm/2.json", "raw/crm/3.json", "raw/crm/4.json", "raw/crm/5.json"}, keys)
}

func TestBlobStoreListObjectsEmptyAndBadToken(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	page, err := store.ListObjects(context.Background(), "raw/", "")
	require.NoError(t, err)
	assert.Empty(t, page.Keys)
	assert.Empty(t, page.NextPageToken)

	_, err = store.ListObjects(context.Background(), "raw/", "abc")
	assert.Error(t, err)
}
