package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whiteboard-sync/internal/api"
	"whiteboard-sync/internal/config"
	"whiteboard-sync/internal/db"
	"whiteboard-sync/internal/repository"
	"whiteboard-sync/internal/services/boardsync"
	"whiteboard-sync/internal/services/collaboration"
	"whiteboard-sync/internal/telemetry"
)

/*
LEARNING: STARTUP AND SHUTDOWN ORDER

Start: tracing → snapshot store → board registry → session gateway → HTTP.
Stop in reverse: stop accepting HTTP, close every websocket (participants
leave their rooms), then stop the board workers. Every board change has
already been persisted by its worker, so there is no final flush.
*/

func main() {
	log.Println("🚀 Starting whiteboard sync server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	jaegerShutdown, err := telemetry.InitJaeger("whiteboard-sync", cfg.JaegerEndpoint, cfg.TraceSampleRatio)
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

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to open %s snapshot store: %v", cfg.StoreBackend, err)
	}
	defer closeStore()

	processor := boardsync.NewProcessor(cfg.HistoryLimit)
	registry := boardsync.NewRegistry(processor, store, cfg.BoardQueueSize)
	log.Printf("✓ Board registry ready (store: %s, history limit: %d)", cfg.StoreBackend, processor.HistoryLimit())

	sessionManager := collaboration.NewSessionManager(registry, cfg.SendBufferSize)
	sessionManager.Start()

	wsHandler := collaboration.NewWebSocketHandler(sessionManager)
	handler := api.NewHandler(registry, sessionManager, wsHandler)
	router := api.SetupRoutes(handler)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Server listening on http://%s", addr)
		log.Printf("📚 Endpoints:")
		log.Printf("   WS     /ws, /ws/board/:id           - Board sessions")
		log.Printf("   GET    /api/boards                  - Live board count")
		log.Printf("   GET    /api/boards/:id              - Board stats")
		log.Printf("   GET    /api/boards/:id/state        - Board snapshot")
		log.Printf("   DELETE /api/boards/:id              - Delete board")
		log.Printf("   POST   /api/boards/merge            - Merge two snapshots")
		log.Printf("   POST   /api/operations/resolve      - Arbitrate two operations")
		log.Println()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	sessionManager.Shutdown()
	registry.Close()

	log.Println("✓ Server shutdown complete")
}

// openStore builds the configured snapshot store; memory means no store at all
func openStore(cfg *config.Config) (boardsync.SnapshotStore, func(), error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		database, err := db.NewGorm(cfg)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSnapshotRepository(database.DB), func() { database.Close() }, nil

	case config.StoreRedis:
		redisStore, err := repository.NewRedisSnapshotStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		log.Println("✓ Connected to Redis snapshot store")
		return redisStore, func() { redisStore.Close() }, nil

	default:
		return nil, func() {}, nil
	}
}
