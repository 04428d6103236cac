package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/config"
	"taskboard/internal/identity"
	"taskboard/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Store.SQLite.Workspace = t.TempDir()
	cfg.Identity.JWTSecret = "s3cret"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewWithSQLite(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.FileExists(t, filepath.Join(cfg.Store.SQLite.Workspace, ".taskboard", "taskboard.db"))
	_, ok := a.Identity.(*identity.Local)
	assert.True(t, ok)

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cfg.Server.Addr, a.HTTPServer().Addr)
}

func TestNewWithMemoryAndSupabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverMemory
	cfg.Identity.Provider = config.ProviderSupabase
	cfg.Identity.Supabase.URL = "https://example.supabase.co"
	cfg.Identity.Supabase.ServiceRoleKey = "key"

	a, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()
	_, ok := a.Identity.(*identity.Supabase)
	assert.True(t, ok)
}

func TestOpenStoreExplicitPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "custom.db")
	store, err := OpenStore(context.Background(), cfg.Store)
	require.NoError(t, err)
	defer store.Close()
	_, err = os.Stat(cfg.Store.SQLite.Path)
	assert.NoError(t, err)
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), config.StoreConfig{Driver: "etcd"})
	assert.Error(t, err)
}

func TestOpenStoreRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverRedis
	cfg.Store.Redis.Addr = miniredis.RunT(t).Addr()
	store, err := OpenStore(context.Background(), cfg.Store)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "user:u:task:1", []byte(`{"title":"x"}`)))
	entries, err := store.GetByPrefix(ctx, "user:u:task:")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverRedis
	cfg.Store.Redis.Addr = "127.0.0.1:1"
	_, err := New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}
