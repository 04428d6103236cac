// Package app wires a Config into a running set of components.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/identity"
	"taskboard/internal/kv"
	"taskboard/internal/migrate"
	"taskboard/internal/server"
	"taskboard/internal/tasks"
)

// App holds the components built from one Config.
type App struct {
	Config   *config.Config
	Logger   logrus.FieldLogger
	Store    kv.Store
	Identity identity.Provider
	Tasks    *tasks.Service
	Handler  http.Handler
}

// New builds the store, identity provider, task service and HTTP handler.
// The config must already be validated.
func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*App, error) {
	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	provider, err := NewProvider(cfg.Identity, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	svc := tasks.NewService(store, tasks.WithLogger(logger))
	handler, err := server.New(server.Config{
		Tasks:       svc,
		Identity:    provider,
		BasePath:    cfg.Server.BasePath,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Identity: provider,
		Tasks:    svc,
		Handler:  handler,
	}, nil
}

// HTTPServer returns a server for the handler with the configured timeouts.
func (a *App) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Handler,
		ReadTimeout:       a.Config.Server.ReadTimeout,
		ReadHeaderTimeout: a.Config.Server.ReadTimeout,
		WriteTimeout:      a.Config.Server.WriteTimeout,
	}
}

func (a *App) Close() error {
	return a.Store.Close()
}

// OpenStore opens the configured KV backend and checks it is reachable.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (kv.Store, error) {
	var store kv.Store
	switch cfg.Driver {
	case config.DriverSQLite:
		if cfg.SQLite.Path == "" {
			if _, err := db.EnsureWorkspace(cfg.SQLite.Workspace); err != nil {
				return nil, fmt.Errorf("prepare workspace: %w", err)
			}
		}
		conn, err := db.Open(db.Config{Workspace: cfg.SQLite.Workspace, Path: cfg.SQLite.Path})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := migrate.MigrateContext(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		store = kv.NewSQLite(conn)
	case config.DriverRedis:
		store = kv.NewRedis(kv.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Namespace: cfg.Redis.Prefix,
		})
	case config.DriverMemory:
		store = kv.NewMemory()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		return nil, fmt.Errorf("%s store unreachable: %w", cfg.Driver, err)
	}
	return store, nil
}

// NewProvider builds the configured identity provider. The local provider
// keeps its accounts in store.
func NewProvider(cfg config.IdentityConfig, store kv.Store, logger logrus.FieldLogger) (identity.Provider, error) {
	switch cfg.Provider {
	case config.ProviderLocal:
		local, err := identity.NewLocal(store, cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			return nil, err
		}
		return local, nil
	case config.ProviderSupabase:
		return identity.NewSupabase(identity.SupabaseConfig{
			URL:            cfg.Supabase.URL,
			ServiceRoleKey: cfg.Supabase.ServiceRoleKey,
			AnonKey:        cfg.Supabase.AnonKey,
			Timeout:        cfg.Supabase.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown identity provider %q", cfg.Provider)
	}
}
