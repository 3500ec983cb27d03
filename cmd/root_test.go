package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/app"
	"github.com/JakeFAU/lakeingest/internal/config"
	"github.com/JakeFAU/lakeingest/internal/fetcher/rest"
	"github.com/JakeFAU/lakeingest/internal/storage/memory"
)

// useMemoryApp swaps the factory for one sharing blobs across commands.
func useMemoryApp(t *testing.T, blobs *memory.BlobStore) {
	t.Helper()
	original := newApp
	newApp = func(ctx context.Context, cfg config.Config, _ *zap.Logger) (*app.App, error) {
		return app.New(ctx, cfg, zap.NewNop(),
			app.WithObjectStore(blobs),
			app.WithFetcherOptions(rest.WithSleeper(rest.SleeperFunc(func(context.Context, time.Duration) error { return nil }))),
		)
	}
	t.Cleanup(func() { newApp = original })
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func apiServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		switch r.URL.Path {
		case "/v1/customers":
			_, _ = w.Write([]byte(`[{"id":"1"},{"id":"2"}]`))
		case "/v1/invoices":
			_, _ = w.Write([]byte(`{"amount":2599}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIngestAndTransformCommands(t *testing.T) {
	srv := apiServer(t, http.StatusOK)
	t.Setenv("LAKE_STORAGE_PROVIDER", "memory")
	t.Setenv("CRM_API_URL", srv.URL)
	t.Setenv("BILLING_API_URL", srv.URL)
	blobs := memory.NewBlobStore()
	useMemoryApp(t, blobs)

	require.NoError(t, execute(t, "ingest"))
	page, err := blobs.ListObjects(context.Background(), "raw/", "")
	require.NoError(t, err)
	assert.Len(t, page.Keys, 2)

	require.NoError(t, execute(t, "transform", "--process-date", "2025-01-15", "--source", "crm"))
	_, err = blobs.GetObject(context.Background(), "curated/crm/dt=2025-01-15/data.parquet")
	require.NoError(t, err)
	_, err = blobs.GetObject(context.Background(), "curated/billing/dt=2025-01-15/data.parquet")
	require.Error(t, err)
}

func TestIngestFailsOnExhaustedRetries(t *testing.T) {
	srv := apiServer(t, http.StatusServiceUnavailable)
	t.Setenv("LAKE_STORAGE_PROVIDER", "memory")
	t.Setenv("LAKE_HTTP_MAX_ATTEMPTS", "2")
	t.Setenv("CRM_API_URL", srv.URL)
	t.Setenv("BILLING_API_URL", srv.URL)
	useMemoryApp(t, memory.NewBlobStore())

	err := execute(t, "ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest failed")
}

func TestFailuresAreNotPrintedByCobra(t *testing.T) {
	t.Setenv("LAKE_STORAGE_PROVIDER", "ftp")
	useMemoryApp(t, memory.NewBlobStore())

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"transform"})

	require.Error(t, root.ExecuteContext(context.Background()))
	assert.NotContains(t, out.String(), "Error:")
}

func TestIngestRequiresEndpoints(t *testing.T) {
	t.Setenv("LAKE_STORAGE_PROVIDER", "memory")
	useMemoryApp(t, memory.NewBlobStore())

	err := execute(t, "ingest", "--source", "crm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRM_API_URL")
}

func TestTransformSkipsEmptyRawZone(t *testing.T) {
	t.Setenv("LAKE_STORAGE_PROVIDER", "memory")
	blobs := memory.NewBlobStore()
	useMemoryApp(t, blobs)

	require.NoError(t, execute(t, "transform"))
	assert.Zero(t, blobs.Puts())
}

func TestTransformRejectsBadProcessDate(t *testing.T) {
	t.Setenv("LAKE_STORAGE_PROVIDER", "memory")
	useMemoryApp(t, memory.NewBlobStore())

	err := execute(t, "transform", "--process-date", "2025/01/15")
	require.Error(t, err)
}

func TestInvalidConfigFails(t *testing.T) {
	t.Setenv("LAKE_STORAGE_PROVIDER", "ftp")
	useMemoryApp(t, memory.NewBlobStore())

	err := execute(t, "transform")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.provider")
}
