package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/internal/config"
	"chat-relay/internal/handlers"
	"chat-relay/internal/registry"
	"chat-relay/internal/store"
	ws "chat-relay/internal/websocket"
	"chat-relay/pkg/logger"

	"github.com/gorilla/mux"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize message store
	messages := newMessageStore(cfg)
	defer messages.Close()

	// Initialize session state and routing
	reg := registry.New()
	hub := ws.NewHub()
	router := ws.NewRouter(reg, messages, hub, cfg.Database.Timeout)

	// Initialize handlers
	wsHandlers := handlers.NewWebSocketHandlers(reg, hub, router)

	// Setup routes
	r := mux.NewRouter()
	r.HandleFunc("/ws", wsHandlers.HandleWebSocket)
	r.HandleFunc("/healthz", handlers.HandleHealth).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.Static.Dir)))

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("Server started on http://localhost%s", cfg.Server.Addr)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown: %v", err)
	}
}

func newMessageStore(cfg *config.Config) store.MessageStore {
	if cfg.Database.URL == "" {
		logger.Info("DATABASE_URL not set; using in-memory message store")
		return store.NewMemoryStore()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pg, err := store.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	return pg
}
