package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Identity providers.
const (
	ProviderLocal    = "local"
	ProviderSupabase = "supabase"
)

// Config models taskboard.yml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Identity IdentityConfig `yaml:"identity"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	BasePath        string        `yaml:"base_path"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	SQLite struct {
		Workspace string `yaml:"workspace"`
		Path      string `yaml:"path"`
	} `yaml:"sqlite"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
}

type IdentityConfig struct {
	Provider  string        `yaml:"provider"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	Supabase  struct {
		URL            string        `yaml:"url"`
		ServiceRoleKey string        `yaml:"service_role_key"`
		AnonKey        string        `yaml:"anon_key"`
		Timeout        time.Duration `yaml:"timeout"`
	} `yaml:"supabase"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskboard.yml")
}

// Default returns a Config with every field seeded.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads the config at path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses config over the defaults. It does not validate, so callers
// can apply environment overrides first.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	return cfg, nil
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with '/'")
	}
	if c.Server.ShutdownTimeout < 0 || c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("config.server timeouts must not be negative")
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverMemory:
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("config.store.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("config.store.driver must be one of sqlite, redis, memory (got %q)", c.Store.Driver)
	}
	switch c.Identity.Provider {
	case ProviderLocal:
		if strings.TrimSpace(c.Identity.JWTSecret) == "" {
			return fmt.Errorf("config.identity.jwt_secret is required for the local provider; set TASKBOARD_JWT_SECRET")
		}
		if c.Identity.TokenTTL <= 0 {
			return fmt.Errorf("config.identity.token_ttl must be positive")
		}
	case ProviderSupabase:
		if c.Identity.Supabase.URL == "" {
			return fmt.Errorf("config.identity.supabase.url is required")
		}
		if c.Identity.Supabase.ServiceRoleKey == "" {
			return fmt.Errorf("config.identity.supabase.service_role_key is required; set TASKBOARD_SUPABASE_SERVICE_ROLE_KEY")
		}
	default:
		return fmt.Errorf("config.identity.provider must be local or supabase (got %q)", c.Identity.Provider)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json (got %q)", c.Log.Format)
	}
	return nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: ""
  read_timeout: 15s
  write_timeout: 15s
  shutdown_timeout: 5s
  cors_origins: ["*"]

store:
  driver: sqlite
  sqlite:
    workspace: .
    path: ""
  redis:
    addr: localhost:6379
    password: ""
    db: 0
    prefix: "taskboard:"

identity:
  provider: local
  jwt_secret: ""
  token_ttl: 24h
  supabase:
    url: ""
    service_role_key: ""
    anon_key: ""
    timeout: 10s

log:
  level: info
  format: text
  file: ""
  max_size_mb: 10
  max_backups: 3
  max_age_days: 28
`
