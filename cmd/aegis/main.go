// Package main provides the inference service entry point
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"

	"github.com/aegis-vision/aegis/internal/api"
	"github.com/aegis-vision/aegis/internal/bus"
	"github.com/aegis-vision/aegis/internal/config"
	"github.com/aegis-vision/aegis/internal/database"
	"github.com/aegis-vision/aegis/internal/detection"
	"github.com/aegis-vision/aegis/internal/incident"
)

const defaultConfigPath = "config.yaml"

func main() {
	configPath := os.Getenv("AEGIS_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("Starting inference service",
		"config_path", configPath,
		"device", cfg.Runtime.Device,
		"runtime", cfg.Runtime.Address,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Threshold changes apply without a restart
	if err := cfg.Watch(); err != nil {
		slog.Warn("Config watching disabled", "error", err)
	}

	// Open incident store
	db, err := database.Open(database.DefaultConfig(cfg.Database.Path))
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	migrator := database.NewMigrator(db)
	if err := migrator.Run(ctx); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Embedded event bus. Optional: the service degrades to plain
	// request/response when it cannot start.
	var eventBus *bus.Bus
	if cfg.Bus.Enabled {
		eventBus, err = bus.New(bus.Config{Host: cfg.Bus.Host, Port: cfg.Bus.Port}, slog.Default())
		if err != nil {
			slog.Warn("Event bus disabled", "error", err)
			eventBus = nil
		} else {
			defer eventBus.Stop()
		}
	}

	// nil interface, not a typed nil, when the bus is off
	var publisher incident.Publisher
	if eventBus != nil {
		publisher = eventBus
	}

	incidents := incident.NewService(db, publisher)

	// Load whatever models are present; missing ones disable their slot
	runtimeClient := detection.NewRuntimeClient(detection.RuntimeConfig{
		Address: cfg.Runtime.Address,
		Device:  cfg.Runtime.Device,
		Timeout: time.Duration(cfg.Runtime.TimeoutSeconds) * time.Second,
	})
	registry := detection.NewRegistry(ctx, cfg, runtimeClient)
	slog.Info("Model registry ready", "status", registry.GetStatus())

	var detectionPublisher detection.Publisher
	if eventBus != nil {
		detectionPublisher = eventBus
	}
	orchestrator := detection.NewOrchestrator(cfg, registry, incidents, detectionPublisher)

	// Incident stream for UI clients, fed from the bus
	var hub *api.Hub
	if eventBus != nil {
		hub = api.NewHub()
		go hub.Run()

		_, err := eventBus.Subscribe(bus.SubjectIncidentCreated, func(msg *nats.Msg) {
			hub.Broadcast(api.Message{
				Type: api.MessageTypeIncident,
				Data: json.RawMessage(msg.Data),
			})
		})
		if err != nil {
			slog.Warn("Incident stream disabled", "error", err)
		}
	}

	server := api.NewServer(orchestrator, registry, incidents, hub)
	router := setupRouter(server)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}

	slog.Info("Server stopped")
}

// setupLogging configures the process-wide logger
func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// setupRouter builds the HTTP router
func setupRouter(server *api.Server) *chi.Mux {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Mount("/", server.Routes())

	return r
}
