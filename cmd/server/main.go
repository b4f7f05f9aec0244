/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the booking engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment
  2. Initialize SQLite store
  3. Wire the engine (controller, webhook adapter, sweeper, reconciler)
  4. Configure HTTP router
  5. Start server with graceful shutdown

ENVIRONMENT:
  HTTP_ADDR              Listen address (default: :8080)
  DB_PATH                SQLite database path (default: booking.db)
                         Use ":memory:" for an in-memory database
  PAYMENT_GRACE_WINDOW   How long a guest has to pay (default: 24h)
  SWEEP_INTERVAL         Expiry sweep cadence (default: 1h)
  SWEEP_ENABLED          Run the background sweeper (default: true)
  SWEEP_SUBMITTED        Also expire PAYMENT_SUBMITTED reservations
                         past their deadline (default: false)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper and wait for an in-flight pass
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  DB_PATH="./data/booking.db" ./server

  # Run with in-memory database on another port
  DB_PATH=":memory:" HTTP_ADDR=":3000" ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/booking-engine/api"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/config"
	"github.com/warp/booking-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire the engine
	opts := []booking.ControllerOption{
		booking.WithGraceWindow(cfg.PaymentGraceWindow),
	}
	if cfg.SweepSubmitted {
		opts = append(opts, booking.WithSweepSubmitted())
	}
	controller := booking.NewController(store, opts...)
	webhook := booking.NewWebhookAdapter(store)
	reconciler := booking.NewReconciler(store)

	sweeper := booking.NewSweeper(store, controller)
	sweeper.Interval = cfg.SweepInterval
	sweeper.Enabled = cfg.SweepEnabled
	sweeper.Start()
	defer sweeper.Stop()

	// Create router
	handler := api.NewHandler(store, controller, webhook, sweeper, reconciler)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on %s", cfg.HTTPAddr)
		log.Printf("📊 API available at http://localhost%s/api", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
