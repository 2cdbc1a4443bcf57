// cmd/bms/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bms-dashboard/internal/alerting"
	"bms-dashboard/internal/api"
	"bms-dashboard/internal/auth"
	"bms-dashboard/internal/bms"
	"bms-dashboard/internal/cache"
	"bms-dashboard/internal/config"
	"bms-dashboard/internal/simulate"
	"bms-dashboard/internal/store"
	"bms-dashboard/internal/websocket"
)

func main() {
	configPath := flag.String("config", ".", "Path to the configuration file directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Persistence ---
	pg, err := store.NewPostgresStore(cfg.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()
	if err := pg.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	if err := store.SeedDefaults(ctx, pg); err != nil {
		log.Fatalf("Failed to seed defaults: %v", err)
	}

	// --- Cache (optional) ---
	redisCache, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("Warning: Redis not available, running without cache: %v", err)
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	// --- Components ---
	hub := websocket.NewHub()
	evaluator := alerting.NewEvaluator(cfg.Alerting.Rules)
	freshness := time.Duration(cfg.Simulation.FreshnessSeconds) * time.Second
	service := bms.NewService(pg, redisCache, freshness)
	authManager := auth.NewManager(pg, cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration)
	loop := simulate.NewLoop(pg, evaluator, hub, redisCache, nil,
		time.Duration(cfg.Simulation.IntervalSeconds)*time.Second)

	go hub.Run(ctx)
	go loop.Run(ctx)

	// --- HTTP server ---
	handler := api.NewHandler(service, authManager, hub)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.SetupRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("BMS dashboard server starting on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	cancel() // stops the simulation loop and the hub

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
