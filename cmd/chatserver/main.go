package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/shadow/chat-server/internal/chat"
	"github.com/shadow/chat-server/internal/config"
	"github.com/shadow/chat-server/internal/gateway"
	"github.com/shadow/chat-server/internal/httpapi"
	"github.com/shadow/chat-server/internal/message"
	"github.com/shadow/chat-server/internal/metrics"
	"github.com/shadow/chat-server/internal/presence"
	"github.com/shadow/chat-server/internal/ratelimit"
	"github.com/shadow/chat-server/internal/session"
	"github.com/shadow/chat-server/internal/storage"
	"github.com/shadow/chat-server/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// --- Storage ---
	var store storage.Store
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		store = pg
	} else {
		log.Printf("DATABASE_URL not set, using in-memory store (data is not durable)")
		store = storage.NewMemoryStore()
	}

	// --- Redis rate limiter (optional) ---
	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			cancel()
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		cancel()
		limiter = ratelimit.NewLimiter(rdb)
	} else {
		log.Printf("REDIS_ADDR not set, rate limiting disabled")
	}

	// --- Core services ---
	sessions := session.NewRegistry()
	sessions.StartSweeper(session.SweepInterval)

	pres := presence.NewRegistry()
	resolver := chat.NewResolver(store)
	pipeline := message.NewPipeline(store)

	// The gateway and the ws server reference each other: the server pushes
	// outbound frames for the gateway, the gateway consumes the server's
	// connection callbacks.
	var server *ws.Server
	var gw *gateway.Gateway

	wsConfig := ws.ServerConfig{
		WorkerPoolSize: cfg.WorkerPoolSize,
		MaxConnections: cfg.MaxConnections,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	}

	server = ws.NewServer(wsConfig, sessions, ws.Callbacks{
		OnConnect: func(c *ws.Connection) {
			gw.Connect(c.ID, c.UserID)
		},
		OnMessage: func(c *ws.Connection, data []byte) {
			gw.HandleEvent(context.Background(), c.ID, c.UserID, data)
		},
		OnDisconnect: func(c *ws.Connection) {
			gw.Disconnect(c.ID)
		},
	})
	if limiter != nil {
		server.SetRateLimiter(limiter)
	}
	gw = gateway.New(pres, resolver, pipeline, server, limiter)

	// --- HTTP surface ---
	mux := http.NewServeMux()
	api := httpapi.NewServer(store, sessions, resolver, cfg.RegistrationCode, cfg.UploadDir)
	api.Register(mux)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if err := server.Start(mux); err != nil {
		log.Fatalf("failed to start websocket server: %v", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	log.Printf("chat server starting")
	log.Printf("  listen_addr:     %s", cfg.ListenAddr)
	log.Printf("  worker_pool:     %d", cfg.WorkerPoolSize)
	log.Printf("  max_connections: %d", cfg.MaxConnections)
	log.Printf("  read_timeout:    %s", cfg.ReadTimeout)
	log.Printf("  write_timeout:   %s", cfg.WriteTimeout)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	_ = server.Shutdown(ctx)
	sessions.Close()
	if err := store.Close(); err != nil {
		log.Printf("store close error: %v", err)
	}

	log.Printf("chat server stopped")
}
