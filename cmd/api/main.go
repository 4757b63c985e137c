// Command api serves the read-only admin HTTP surface over the observed
// entity store: aggregate counts, recently-seen identities and full-text
// search, plus a Prometheus /metrics endpoint.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-polyglot-persistence/internal/api"
	"go-polyglot-persistence/internal/cache"
	"go-polyglot-persistence/internal/config"
	"go-polyglot-persistence/internal/search"
	"go-polyglot-persistence/internal/store"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	// ── Infrastructure ─────────────────────────────────────────────────────

	db, err := store.Connect(context.Background(), cfg.Postgres.URL)
	if err != nil {
		slog.Error("postgres connect failed", "component", "admin_api", "error", err)
		os.Exit(1)
	}

	// Cache and search back optional features only — their absence drops
	// the recent identities from /api/stats and turns /api/search into a
	// 503, not a failed startup.
	var entityCache *cache.Client
	if c, err := cache.New(cfg.RedisAddr, cfg.RedisCacheSize); err != nil {
		slog.Warn("redis cache disabled", "component", "admin_api", "error", err)
	} else {
		entityCache = c
		defer entityCache.Close()
	}

	var searchClient *search.Client
	if s, err := search.New(cfg.ElasticsearchAddr); err != nil {
		slog.Warn("elasticsearch search disabled", "component", "admin_api", "error", err)
	} else {
		searchClient = s
	}

	// ── HTTP server ────────────────────────────────────────────────────────

	h := &api.Handler{
		Store:  db,
		Cache:  cacheReader(entityCache),
		Search: searchReader(searchClient),
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         cfg.AdminAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("admin api started", "component", "admin_api", "addr", cfg.AdminAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "component", "admin_api", "error", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutdown signal received", "component", "admin_api")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "component", "admin_api", "error", err)
	}

	db.Close()

	slog.Info("shutdown complete", "component", "admin_api")
}

func cacheReader(c *cache.Client) api.EntityCache {
	if c == nil {
		return nil
	}
	return c
}

func searchReader(c *search.Client) api.EntitySearch {
	if c == nil {
		return nil
	}
	return c
}
