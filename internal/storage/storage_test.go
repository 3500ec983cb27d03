package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/config"
	"github.com/JakeFAU/lakeingest/internal/storage"
	"github.com/JakeFAU/lakeingest/internal/storage/local"
	"github.com/JakeFAU/lakeingest/internal/storage/memory"
)

func TestNewMemory(t *testing.T) {
	store, closeFn, err := storage.New(context.Background(), config.StorageConfig{
		Provider:     config.ProviderMemory,
		ListPageSize: 10,
	}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &memory.BlobStore{}, store)
	assert.NoError(t, closeFn())
}

func TestNewLocal(t *testing.T) {
	store, closeFn, err := storage.New(context.Background(), config.StorageConfig{
		Provider:     config.ProviderLocal,
		ListPageSize: 10,
		Local:        local.Config{BaseDir: t.TempDir()},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &local.BlobStore{}, store)
	assert.NoError(t, closeFn())
}

func TestNewUnknownProvider(t *testing.T) {
	_, closeFn, err := storage.New(context.Background(), config.StorageConfig{Provider: "ftp"}, zap.NewNop())
	assert.Error(t, err)
	assert.NotNil(t, closeFn)
}
