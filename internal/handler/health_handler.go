package handler

import (
	"net/http"
	"time"

	"github.com/stone-hackingod/backend-votux/pkg/database"
	"github.com/stone-hackingod/backend-votux/pkg/logger"
	"github.com/stone-hackingod/backend-votux/pkg/redis"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	ledgerDB    *database.PostgresDB
	vaultDB     *database.PostgresDB
	redisClient *redis.Client
	logger      *logger.Logger
}

// NewHealthHandler creates a new health handler. redisClient may be nil.
func NewHealthHandler(ledgerDB, vaultDB *database.PostgresDB, redisClient *redis.Client, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{
		ledgerDB:    ledgerDB,
		vaultDB:     vaultDB,
		redisClient: redisClient,
		logger:      logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   "backend-votux",
		Checks:    make(map[string]string),
	}

	if err := h.ledgerDB.Health(ctx); err != nil {
		h.logger.WithError(err).Error("Ledger database health check failed")
		response.Status = "unhealthy"
		response.Checks["ledger_db"] = err.Error()
	} else {
		response.Checks["ledger_db"] = "ok"
	}

	if err := h.vaultDB.Health(ctx); err != nil {
		h.logger.WithError(err).Error("Vault database health check failed")
		response.Status = "unhealthy"
		response.Checks["vault_db"] = err.Error()
	} else {
		response.Checks["vault_db"] = "ok"
	}

	if h.redisClient != nil {
		if err := h.redisClient.Health(ctx); err != nil {
			h.logger.WithError(err).Warn("Redis health check failed")
			// Redis down means degraded, not unhealthy
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
			response.Checks["redis"] = err.Error()
		} else {
			response.Checks["redis"] = "ok"
		}
	} else {
		response.Checks["redis"] = "disabled"
	}

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, response)
}
