// Command robserver is the AMQP probe: it opens one connection to the
// broker, discovers and binds to every relevant exchange, and records a
// deduplicated, counted summary of every distinct payload shape it sees
// into Postgres.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go-polyglot-persistence/internal/amqp"
	"go-polyglot-persistence/internal/cache"
	"go-polyglot-persistence/internal/config"
	"go-polyglot-persistence/internal/reporter"
	"go-polyglot-persistence/internal/search"
	"go-polyglot-persistence/internal/store"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Infrastructure ─────────────────────────────────────────────────────

	db, err := store.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		slog.Error("postgres connect failed", "component", "robserver", "error", err)
		os.Exit(1)
	}

	// Cache and search are enrichments, not requirements — log and continue
	// without them rather than fail the whole probe over an optional
	// backend being unreachable.
	var entityCache *cache.Client
	if c, err := cache.New(cfg.RedisAddr, cfg.RedisCacheSize); err != nil {
		slog.Warn("redis cache disabled", "component", "robserver", "error", err)
	} else {
		entityCache = c
		defer entityCache.Close()
	}

	var searchClient *search.Client
	if s, err := search.New(cfg.ElasticsearchAddr); err != nil {
		slog.Warn("elasticsearch search disabled", "component", "robserver", "error", err)
	} else {
		searchClient = s
	}

	cronScheduler, err := reporter.Start(cfg.StatsSchedule, db)
	if err != nil {
		slog.Error("invalid stats schedule", "component", "robserver", "schedule", cfg.StatsSchedule, "error", err)
		os.Exit(1)
	}

	// ── Pipeline ───────────────────────────────────────────────────────────
	//
	// One bounded channel connects the Payload Consumer to the DB Batcher.
	// Its capacity is the pipeline's sole admission control: when it fills,
	// the consumer parks, prefetch credit drains, and the broker stops
	// pushing.

	payloads := make(chan store.Payload, cfg.BufferSize)

	batcher := store.NewBatcher(db, cfg.Postgres.MaxQuerySize, cacheToucher(entityCache), searchIndexer(searchClient))
	batcherDone := make(chan error, 1)
	// The batcher is not tied to the shutdown signal: it stops only when
	// the payload channel is closed below, after draining what is queued.
	go func() { batcherDone <- batcher.Run(context.Background(), payloads) }()

	session, err := amqp.NewSession(ctx, cfg.AMQP, payloads)
	if err != nil {
		slog.Error("broker session failed", "component", "robserver", "error", err)
		os.Exit(1)
	}

	sessionDone := make(chan error, 1)
	go func() { sessionDone <- session.Run(ctx) }()

	// ── Run until shutdown or a fatal error in either half ──────────────────
	//
	// batcherDone is a single-send channel: whichever arm below drains it
	// (if any) must be remembered, or the second wait at the bottom blocks
	// forever on a goroutine that already exited.

	batcherAlreadyDone := false

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received", "component", "robserver")
	case err := <-sessionDone:
		if err != nil {
			slog.Error("broker session error", "component", "robserver", "error", err)
		}
	case err := <-batcherDone:
		batcherAlreadyDone = true
		if err != nil {
			slog.Error("db batcher error", "component", "robserver", "error", err)
		}
	}

	// ── Graceful shutdown ────────────────────────────────────────────────
	//
	// Closing the AMQP connection stops the consumer from pulling new
	// deliveries; closing the payload channel afterward lets the batcher
	// flush whatever is already queued before this process exits.

	session.Close()
	close(payloads)
	if !batcherAlreadyDone {
		<-batcherDone
	}

	<-cronScheduler.Stop().Done()
	db.Close()

	slog.Info("robserver stopped", "component", "robserver")
}

func cacheToucher(c *cache.Client) store.CacheToucher {
	if c == nil {
		return nil
	}
	return c
}

func searchIndexer(c *search.Client) store.SearchIndexer {
	if c == nil {
		return nil
	}
	return c
}
