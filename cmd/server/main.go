package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"jewelry-backend/internal/audit"
	"jewelry-backend/internal/catalog"
	"jewelry-backend/internal/composition"
	"jewelry-backend/internal/config"
	"jewelry-backend/internal/database"
	"jewelry-backend/internal/logger"
	"jewelry-backend/internal/observability"
	"jewelry-backend/internal/ratelimit"
	"jewelry-backend/internal/server"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// run owns every resource it opens, so deferred cleanup (tracing flush,
// redis close, logger sync) runs before main exits.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logg, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logg.Sync()

	if cfg.UsesDefaultDSN() {
		logg.Warn("DATABASE_DSN not set, using local default")
	}

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, logg, cfg)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logg.Warn("tracing shutdown failed", "error", err)
		}
	}()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = ratelimit.NewRedisClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
	}
	limit, err := ratelimit.NewLimiter(cfg, rdb)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	auditLog := audit.NewLog(db, cfg.DBTimeout)
	catalogSvc := catalog.NewService(db, auditLog, catalog.NewGuard(db, cfg.DBTimeout), logg, cfg.DBTimeout)
	products := composition.NewStore(db, catalogSvc, logg, cfg.DBTimeout)

	app := server.New(server.Deps{
		DB:          db,
		Catalog:     catalogSvc,
		Audit:       auditLog,
		Products:    products,
		Limiter:     limit,
		Log:         logg,
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: strings.Join(cfg.CORSOriginList(), ","),
	})

	go func() {
		<-ctx.Done()
		logg.Info("shutting down")
		if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
			logg.Error("shutdown failed", "error", err)
		}
	}()

	logg.Info("server listening", "port", cfg.HTTPPort, "redis", cfg.RedisAddr != "")
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}
