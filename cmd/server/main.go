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

	"github.com/redis/go-redis/v9"

	"lalaquiz-backend/internal/config"
	"lalaquiz-backend/internal/database"
	"lalaquiz-backend/internal/handlers"
	"lalaquiz-backend/internal/middleware"
	"lalaquiz-backend/internal/repository"
	"lalaquiz-backend/internal/router"
	"lalaquiz-backend/internal/services"
	"lalaquiz-backend/internal/store"
	"lalaquiz-backend/internal/websocket"
	"lalaquiz-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting LalaQuiz Backend...")
	ctx := context.Background()

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	services.SetVerbose(cfg.Verbose)
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize Redis Clients (optional) ────
	var redisClients *database.RedisClients
	if cfg.RedisURL != "" {
		var err error
		redisClients, err = database.NewRedisClients(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer redisClients.Close()
		log.Println("✓ Redis connected")
	} else {
		log.Println("✓ Redis not configured, generation runs inline")
	}

	// ──── Step 3: Open Session Store ────
	kv, err := openStore(ctx, cfg, redisClients)
	if err != nil {
		log.Fatalf("✗ Store %q failed: %v", cfg.StoreDriver, err)
	}
	defer kv.Close()
	log.Printf("✓ Session store ready (%s)", cfg.StoreDriver)

	// ──── Step 4: Initialize AI Provider ────
	fileExtractService := services.NewFileExtractService()
	generator, err := services.NewGenerator(ctx, cfg, fileExtractService)
	if err != nil {
		log.Fatalf("✗ AI provider initialization failed: %v", err)
	}
	defer generator.Close()
	log.Printf("✓ AI provider initialized (%s)", generator.Name())

	// ──── Step 5: Start WebSocket Hub ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	var pubsubClient *redis.Client
	if redisClients != nil {
		pubsubClient = redisClients.PubSub
	}
	wsHub := websocket.NewHub(pubsubClient, jwtAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Initialize Services ────
	sessionService := services.NewSessionService(
		store.NewSlots(kv),
		generator,
		fileExtractService,
		services.NewYouTubeService(),
		wsHub,
		services.SessionServiceConfig{
			ShareBaseURL:      cfg.ShareBaseURL,
			ShareMaxURLLength: cfg.ShareMaxURLLength,
		},
	)

	// ──── Step 6: Start Job Worker Pool ────
	var (
		queue      handlers.JobQueue
		jobs       handlers.JobReader
		workerPool *worker.Pool
	)
	if redisClients != nil {
		jobRepo := repository.NewJobRepo(redisClients.Queue)
		workerPool = worker.NewPool(redisClients.Queue, sessionService, jobRepo, wsHub, cfg.WorkerCount)
		workerPool.Start()
		queue, jobs = workerPool, jobRepo
		log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)
	}

	// ──── Step 7: Start HTTP Server ────
	r := router.New(jwtAuth, router.Handlers{
		Auth:      handlers.NewAuthHandler(jwtAuth),
		Quiz:      handlers.NewQuizHandler(sessionService, queue, jobs),
		Session:   handlers.NewSessionHandler(sessionService),
		Share:     handlers.NewShareHandler(sessionService, cfg.ShareBaseURL),
		Stats:     handlers.NewStatsHandler(sessionService),
		WebSocket: wsHub.HandleWebSocket,
	}, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // inline generation waits on the provider
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		if workerPool != nil {
			workerPool.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ LalaQuiz Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

// openStore connects the key-value driver named by cfg.StoreDriver.
func openStore(ctx context.Context, cfg *config.Config, redisClients *database.RedisClients) (store.KV, error) {
	switch cfg.StoreDriver {
	case "redis":
		if redisClients == nil {
			return nil, fmt.Errorf("REDIS_URL is not set")
		}
		return store.NewRedisKV(redisClients.Queue, "lalaquiz:"), nil

	case "postgres":
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(ctx, pool, "migrations"); err != nil {
			pool.Close()
			return nil, err
		}
		log.Println("✓ Database migrations applied")
		return &closingKV{KV: store.NewPostgresKV(pool), close: pool.Close}, nil

	case "sqlite":
		db, err := database.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store.NewSQLiteKV(ctx, db)
	}
	return store.NewMemoryKV(), nil
}

// closingKV releases the connection pool behind a driver that does not own it.
type closingKV struct {
	store.KV
	close func()
}

func (c *closingKV) Close() error {
	c.close()
	return nil
}
