package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultNeedsOnlyASecret(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, ProviderLocal, cfg.Identity.Provider)
	assert.Equal(t, 24*time.Hour, cfg.Identity.TokenTTL)
	assert.Equal(t, "taskboard:", cfg.Store.Redis.Prefix)

	require.Error(t, cfg.Validate())
	cfg.Identity.JWTSecret = "s3cret"
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := Path(t.TempDir())
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: redis
  redis:
    addr: redis:6379
identity:
  provider: supabase
  supabase:
    url: https://example.supabase.co
    service_role_key: key
log:
  format: json
`), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "taskboard:", cfg.Store.Redis.Prefix, "unset keys keep defaults")
	assert.Equal(t, 10*time.Second, cfg.Identity.Supabase.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"driver":    func(c *Config) { c.Store.Driver = "mongo" },
		"provider":  func(c *Config) { c.Identity.Provider = "ldap" },
		"base path": func(c *Config) { c.Server.BasePath = "api" },
		"redis":     func(c *Config) { c.Store.Driver = DriverRedis; c.Store.Redis.Addr = "" },
		"supabase":  func(c *Config) { c.Identity.Provider = ProviderSupabase },
		"format":    func(c *Config) { c.Log.Format = "xml" },
		"ttl":       func(c *Config) { c.Identity.TokenTTL = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Identity.JWTSecret = "s3cret"
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestInvalidYAML(t *testing.T) {
	_, err := FromYAML([]byte("server: [unclosed"))
	assert.Error(t, err)
}
