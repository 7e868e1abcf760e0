package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/stone-hackingod/backend-votux/internal/config"
	"github.com/stone-hackingod/backend-votux/internal/container"
	"github.com/stone-hackingod/backend-votux/internal/handler"
	"github.com/stone-hackingod/backend-votux/internal/middleware"
	"github.com/stone-hackingod/backend-votux/internal/repository"
	"github.com/stone-hackingod/backend-votux/internal/service"
	"github.com/stone-hackingod/backend-votux/pkg/database"
	"github.com/stone-hackingod/backend-votux/pkg/logger"
	"github.com/stone-hackingod/backend-votux/pkg/redis"
)

// Resources holds all resources that need cleanup
type Resources struct {
	ledgerDB    *database.PostgresDB
	vaultDB     *database.PostgresDB
	redisClient *redis.Client
	server      *http.Server
	log         *logger.Logger
	mu          sync.Mutex
	closed      bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errors []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		r.log.Info("Shutting down HTTP server...")
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errors = append(errors, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	// Close Redis connection with health check
	if r.redisClient != nil {
		r.log.Info("Closing Redis connection...")

		healthCtx, healthCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := r.redisClient.Health(healthCtx); err != nil {
			r.log.WithError(err).Warn("Redis health check failed before closing")
		}
		healthCancel()

		if err := r.redisClient.Close(); err != nil {
			r.log.WithError(err).Error("Failed to close Redis connection")
			errors = append(errors, fmt.Errorf("Redis close: %w", err))
		} else {
			r.log.Info("Redis connection closed successfully")
		}
	}

	// Close the vault pool before the ledger pool; in-flight submissions
	// hit the vault first
	if r.vaultDB != nil {
		r.log.Info("Closing vault connection pool...")
		r.vaultDB.Close()
		r.log.Info("Vault connection pool closed successfully")
	}

	if r.ledgerDB != nil {
		r.log.Info("Closing ledger connection pool...")
		r.ledgerDB.Close()
		r.log.Info("Ledger connection pool closed successfully")
	}

	if len(errors) > 0 {
		r.log.WithField("error_count", len(errors)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errors), errors)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":          cfg.Port,
		"log_level":     cfg.LogLevel,
		"environment":   cfg.Environment,
		"tally_workers": cfg.TallyWorkers,
	}).Info("Starting backend-votux server")

	// Create dependency injection container
	c, err := container.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	// The eligibility ledger and the ballot vault run on separate pools so
	// no session can join voter identity against ballot content
	ctx := context.Background()
	ledgerDB, err := database.NewPostgresDB(ctx, cfg.LedgerDatabaseURL, "ledger")
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to ledger database")
	}

	vaultDB, err := database.NewPostgresDB(ctx, cfg.VaultDatabaseURL, "vault")
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to vault database")
	}

	// Initialize repositories
	eligibilityRepo := repository.NewEligibilityRepository(ledgerDB)
	ballotRepo := repository.NewBallotRepository(vaultDB)
	electionRepo := repository.NewElectionRepository(ledgerDB)
	resultRepo := repository.NewResultRepository(ledgerDB)

	// Initialize services
	redisClient := c.GetRedisClient()
	services := &service.Services{
		Voting:      service.NewVotingService(eligibilityRepo, ballotRepo, electionRepo, c.GetCipher(), redisClient, log.Logger),
		Eligibility: service.NewEligibilityService(eligibilityRepo, log.Logger),
		Tally:       service.NewTallyService(eligibilityRepo, ballotRepo, electionRepo, resultRepo, c.GetCipher(), c.NewTallyLocker(), redisClient, log.Logger, cfg.TallyWorkers),
		TieBreak:    service.NewTieBreakService(electionRepo, resultRepo, redisClient, log.Logger),
	}

	// Setup router
	router := setupRouter(c, services, ledgerDB, vaultDB)

	// Create HTTP server
	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Create resources manager for cleanup
	resources := &Resources{
		ledgerDB:    ledgerDB,
		vaultDB:     vaultDB,
		redisClient: redisClient,
		server:      server,
		log:         log,
	}

	// Setup graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	// Wait for interrupt signal or server error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	log.Info("Initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(c *container.Container, services *service.Services, ledgerDB, vaultDB *database.PostgresDB) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()

	r := chi.NewRouter()

	// Setup CORS middleware
	corsConfig := &middleware.CORSConfig{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"},
		ExposedHeaders:   []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           86400,
	}

	// Setup middlewares
	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID(log))
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Create handlers
	healthHandler := handler.NewHealthHandler(ledgerDB, vaultDB, c.GetRedisClient(), log)
	ballotHandler := handler.NewBallotHandler(services.Voting, services.Tally, log)
	adminHandler := handler.NewAdminHandler(services.Tally, services.TieBreak, services.Eligibility, log)

	// Health check (no auth required)
	r.Get("/health", healthHandler.Check)

	r.Route("/api/v1", func(r chi.Router) {
		// Public ballot endpoints
		r.Post("/votes", ballotHandler.SubmitVote)
		r.Get("/elections/{electionID}/results", ballotHandler.GetResults)
		r.Get("/receipts/{voteHash}", ballotHandler.VerifyReceipt)

		// Admin endpoints (bearer token with admin role required)
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(cfg.AdminJWTSecret, log))

			r.Route("/elections/{electionID}", func(r chi.Router) {
				r.Post("/tally", adminHandler.RunTally)
				r.Post("/tie-break", adminHandler.ResolveTie)
				r.Post("/proclaim", adminHandler.Proclaim)
				r.Get("/decisions", adminHandler.ListDecisions)

				r.Post("/eligibility", adminHandler.AddEligibility)
				r.Delete("/eligibility/{voterID}", adminHandler.RemoveEligibility)
				r.Get("/eligibility/{voterID}", adminHandler.CheckEligibility)
			})
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"not_found","message":"Endpoint not found"}}`))
	})

	log.Info("Router configured successfully")
	return r
}
