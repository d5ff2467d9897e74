package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"annosync/internal/api"
	"annosync/internal/broker"
	"annosync/internal/config"
	"annosync/internal/db"
	"annosync/internal/relay"
	"annosync/internal/repository"
	"annosync/internal/telemetry"
)

/*
LEARNING: GRACEFUL SHUTDOWN PATTERN WITH OPTIONAL BACKENDS

annobroker is a development STOMP broker for annotation clients:
1. Jaeger tracing first, so every later operation is traced
2. Optional Postgres journal (DB_HOST) and Redis relay (REDIS_ADDR)
3. Broker event loop, then the HTTP server
4. On SIGINT/SIGTERM: stop accepting, stop the relay, close sessions
*/

func main() {
	log.Println("🚀 Starting annotation broker...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	jaegerShutdown, err := telemetry.InitJaeger("annobroker", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	settings := broker.DefaultSettings()
	settings.IdleTimeout = cfg.IdleTimeout
	settings.SendBufferSize = cfg.SendBufferSize
	b := broker.New(settings)
	b.SetAppHandler(logRequest)

	// Learning: a nil *JournalRepositoryImpl inside an interface is not nil,
	// so the store stays an untyped nil when no database is configured
	var store api.FrameStore
	if cfg.JournalEnabled() {
		database, err := db.NewGorm(cfg)
		if err != nil {
			log.Fatalf("❌ Failed to connect to database: %v", err)
		}
		defer database.Close()

		journal := repository.NewJournalRepository(database.DB)
		b.SetJournal(journal)
		store = journal
		go pruneJournal(ctx, journal, cfg.JournalKeepFrames)
	}

	if cfg.RedisAddr != "" {
		redisRelay, err := relay.NewRedis(ctx, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer redisRelay.Close()

		b.SetRelay(redisRelay)
		go redisRelay.Run(ctx, b.DeliverLocal)
	}

	b.Start()

	handler := api.NewHandler(b, store)
	router := api.SetupRoutes(handler)

	addr := cfg.BrokerAddr()
	server := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Broker listening on http://%s", addr)
		log.Printf("📚 Endpoints:")
		log.Printf("   GET    /ws                  - STOMP over WebSocket")
		log.Printf("   GET    /api/sessions        - List sessions")
		log.Printf("   GET    /api/sessions/:id    - Get session")
		log.Printf("   GET    /api/frames          - Journaled frames (?destination=&limit=)")
		log.Printf("   GET    /api/frames/latest   - Latest journaled frame")
		log.Println()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down broker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Learning: Shutdown does not wait for hijacked websocket connections,
	// the broker closes those itself
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	stop()
	b.Shutdown()

	log.Println("✓ Broker shutdown complete")
}

// logRequest is the application handler of the development broker. It only
// journals (through the broker) and logs; a real annotation server answers.
func logRequest(ctx context.Context, sessionID, destination string, body []byte) {
	log.Printf("📨 %s from %s (%d bytes)", destination, sessionID, len(body))
}

func pruneJournal(ctx context.Context, journal *repository.JournalRepositoryImpl, keep int) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := journal.DeleteOldFrames(ctx, keep)
			if err != nil {
				log.Printf("⚠️  Failed to prune journal: %v", err)
				continue
			}
			if deleted > 0 {
				log.Printf("🧹 Pruned %d journaled frames", deleted)
			}
		}
	}
}
