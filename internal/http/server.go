// Server bootstrap: the composition root that turns a Config into a running
// HTTP server. It initializes logging, tracing, both stores (remote manager
// and local fallback), registers the routes, and hands back a cleanup
// function that releases everything in reverse order.
package httpapi

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/thaltrack/journal-backend/internal/config"
	"github.com/thaltrack/journal-backend/internal/kv"
	"github.com/thaltrack/journal-backend/internal/observability"
	"github.com/thaltrack/journal-backend/internal/repo"
	"github.com/thaltrack/journal-backend/internal/sysutil"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// NewServer builds the HTTP server and all of its dependencies from cfg.
// The returned cleanup function must be called after the server stops; it
// closes the remote store connection, the local database, and the tracer.
//
// Store topology: with a Redis URL configured the remote manager is primary
// and the local SQLite database is the fallback. With no URL the manager
// still exists but every acquisition fails, which routes all traffic to the
// local store (local-only mode). A failed local open is survivable as long
// as the remote store is configured.
func NewServer(ctx context.Context, cfg config.Config) (*http.Server, func(context.Context) error, error) {
	setupLogging(cfg)

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, Version)
	if err != nil {
		return nil, nil, err
	}

	manager := kv.NewManager(kv.Options{
		URL:               cfg.Store.RedisURL,
		ServerSide:        true,
		ReconnectCooldown: cfg.Store.ReconnectCooldown,
		DialTimeout:       cfg.Store.DialTimeout,
	})

	var localDB *gorm.DB
	if db, err := repo.OpenSQLite(cfg.LocalDBPath); err != nil {
		if cfg.Store.RedisURL == "" {
			return nil, nil, err
		}
		log.Warn().Err(err).Str("path", cfg.LocalDBPath).
			Msg("local fallback store unavailable, running remote-only")
	} else if err := repo.AutoMigrate(db); err != nil {
		return nil, nil, err
	} else {
		localDB = db
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	RegisterRoutes(r, manager, localDB, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	cleanup := func(ctx context.Context) error {
		var first error
		if err := manager.Close(); err != nil {
			first = err
		}
		if localDB != nil {
			if sqlDB, err := localDB.DB(); err == nil {
				if err := sqlDB.Close(); err != nil && first == nil {
					first = err
				}
			}
		}
		if err := otelShutdown(ctx); err != nil && first == nil {
			first = err
		}
		return first
	}

	return srv, cleanup, nil
}

// setupLogging configures the global zerolog logger from cfg.
func setupLogging(cfg config.Config) {
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
