package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lakeingest/internal/pipeline"
)

type fakeMinio struct {
	exists  bool
	made    []string
	objects map[string][]byte
	types   map[string]string
}

func newFake() *fakeMinio {
	return &fakeMinio{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeMinio) BucketExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeMinio) MakeBucket(_ context.Context, name string, _ miniogo.MakeBucketOptions) error {
	f.made = append(f.made, name)
	return nil
}

func (f *fakeMinio) PutObject(_ context.Context, _, key string, r io.Reader, size int64,
	opts miniogo.PutObjectOptions,
) (miniogo.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return miniogo.UploadInfo{}, err
	}
	if int64(len(data)) != size {
		return miniogo.UploadInfo{}, errors.New("size mismatch")
	}
	f.objects[key] = data
	f.types[key] = opts.ContentType
	return miniogo.UploadInfo{Key: key, Size: size}, nil
}

func (f *fakeMinio) ListObjects(ctx context.Context, _ string, opts miniogo.ListObjectsOptions) <-chan miniogo.ObjectInfo {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, opts.Prefix) && k > opts.StartAfter {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	ch := make(chan miniogo.ObjectInfo)
	go func() {
		defer close(ch)
		for _, k := range keys {
			select {
			case ch <- miniogo.ObjectInfo{Key: k}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (f *fakeMinio) get(_ context.Context, _, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, miniogo.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestEnsureBucketCreatesMissing(t *testing.T) {
	fake := newFake()
	store, err := newStore(fake, fake.get, Config{Bucket: "raw-data"})
	require.NoError(t, err)
	require.NoError(t, store.ensureBucket(context.Background()))
	assert.Equal(t, []string{"raw-data"}, fake.made)

	fake.exists = true
	fake.made = nil
	require.NoError(t, store.ensureBucket(context.Background()))
	assert.Empty(t, fake.made)
}

func TestPutAndGet(t *testing.T) {
	fake := newFake()
	store, err := newStore(fake, fake.get, Config{Bucket: "lake"})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "watermarks/crm.json", "application/json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "s3://lake/watermarks/crm.json", uri)
	assert.Equal(t, "application/json", fake.types["watermarks/crm.json"])

	got, err := store.GetObject(ctx, "watermarks/crm.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	_, err = store.GetObject(ctx, "watermarks/none.json")
	assert.ErrorIs(t, err, pipeline.ErrObjectNotFound)
}

func TestListObjectsStartAfter(t *testing.T) {
	fake := newFake()
	store, err := newStore(fake, fake.get, Config{Bucket: "lake", PageSize: 2})
	require.NoError(t, err)
	ctx := context.Background()
	for _, k := range []string{"raw/crm/1.json", "raw/crm/2.json", "raw/crm/3.json", "raw/billing/1.json"} {
		_, err := store.PutObject(ctx, k, "", strings.NewReader("{}"))
		require.NoError(t, err)
	}

	first, err := store.ListObjects(ctx, "raw/crm/", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"raw/crm/1.json", "raw/crm/2.json"}, first.Keys)
	assert.Equal(t, "raw/crm/2.json", first.NextPageToken)

	second, err := store.ListObjects(ctx, "raw/crm/", first.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"raw/crm/3.json"}, second.Keys)
	assert.Empty(t, second.NextPageToken)
}

func TestNewStoreRequiresBucket(t *testing.T) {
	fake := newFake()
	_, err := newStore(fake, fake.get, Config{})
	assert.Error(t, err)
}
