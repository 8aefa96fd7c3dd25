package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lockblip/server/internal/auth"
	"github.com/lockblip/server/internal/config"
	"github.com/lockblip/server/internal/db"
	"github.com/lockblip/server/internal/events"
	"github.com/lockblip/server/internal/ghost"
	httphandler "github.com/lockblip/server/internal/http"
	"github.com/lockblip/server/internal/http/handlers"
	"github.com/lockblip/server/internal/repo"
	"github.com/pressly/goose/v3"
	_ "github.com/lib/pq"
)

const sweepInterval = 15 * time.Second

func main() {
	// Load .env from CWD so it works from the repo root (env vars override)
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create context for startup operations
	ctx := context.Background()

	// Open database connection
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	identityRepo := repo.NewIdentityRepo(database)
	sessionRepo := repo.NewSessionRepo(database)
	grantRepo := repo.NewGrantRepo(database)
	messageRepo := repo.NewMessageRepo(database)
	auditRepo := repo.NewAuditRepo(database)

	// Real-time event publisher (no-op unless NATS_URL is set)
	var publisher events.Publisher = events.Noop{}
	if cfg.NatsURL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NatsURL)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
	}

	// Ghost Mode core
	creds := ghost.NewCredentialStore(identityRepo, cfg.PinSalt)
	registry := ghost.NewSessionRegistry(sessionRepo)
	grants := ghost.NewGrantLedger(grantRepo, cfg.PinSalt)
	messages := ghost.NewMessageStore(messageRepo)
	audit := ghost.NewAuditSink(auditRepo)
	defer audit.Close()

	svc := ghost.NewService(creds, registry, grants, messages, audit, publisher)

	// Background expiry sweep
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := ghost.NewSweeper(messageRepo, grantRepo, sessionRepo, publisher)
	go sweeper.Run(sweepCtx, sweepInterval)

	// Initialize handlers
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	ghostHandler := handlers.NewGhostHandler(svc)
	authHandler := handlers.NewAuthHandler(jwtService, cfg.DevMode)

	// Create router
	router := httphandler.NewRouter(ghostHandler, authHandler, jwtService)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}

	absDir, _ := filepath.Abs(migrationDir)
	log.Printf("Running migrations from %s", absDir)

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
