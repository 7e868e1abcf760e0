package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// MinBallotSecretLen is the smallest accepted encryption secret. The
// per-election keys are derived from this value; an undersized secret is a
// startup failure, not a runtime one.
const MinBallotSecretLen = 32

// Config holds all configuration values for the application
type Config struct {
	Port              string
	AllowedOrigins    []string
	LogLevel          string
	LedgerDatabaseURL string
	VaultDatabaseURL  string // Separate store for ballots; falls back to the ledger URL
	RedisURL          string
	BallotSecret      string
	AdminJWTSecret    string
	TallyWorkers      int
	Environment       string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		AllowedOrigins:    parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:5174")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LedgerDatabaseURL: getEnv("LEDGER_DATABASE_URL", ""),
		VaultDatabaseURL:  getEnv("VAULT_DATABASE_URL", getEnv("LEDGER_DATABASE_URL", "")), // Falls back to the ledger DB if not set
		RedisURL:          getEnv("REDIS_URL", ""),
		BallotSecret:      getEnv("BALLOT_SECRET", ""),
		AdminJWTSecret:    getEnv("ADMIN_JWT_SECRET", ""),
		TallyWorkers:      getIntEnv("TALLY_WORKERS", 4),
		Environment:       getEnv("ENVIRONMENT", "production"),
	}

	if len(cfg.BallotSecret) < MinBallotSecretLen {
		return nil, fmt.Errorf("BALLOT_SECRET must be at least %d bytes, got %d", MinBallotSecretLen, len(cfg.BallotSecret))
	}
	if cfg.TallyWorkers < 1 {
		cfg.TallyWorkers = 1
	}

	return cfg, nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
