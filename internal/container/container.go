package container

import (
	"github.com/stone-hackingod/backend-votux/internal/config"
	"github.com/stone-hackingod/backend-votux/internal/encryption"
	"github.com/stone-hackingod/backend-votux/internal/service"
	"github.com/stone-hackingod/backend-votux/pkg/logger"
	"github.com/stone-hackingod/backend-votux/pkg/redis"
)

// Container holds the process-wide dependencies that exist before any
// database pool is opened. The pools themselves are wired in main so the
// ledger and the vault keep separate connection lifecycles.
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	RedisClient *redis.Client
	Cipher      *encryption.Service
}

// New creates a new dependency injection container
func New(cfg *config.Config, logger *logger.Logger) (*Container, error) {
	// The cipher is mandatory; without it no ballot can be sealed
	cipher, err := encryption.NewService(cfg.BallotSecret)
	if err != nil {
		return nil, err
	}

	// Initialize Redis client if Redis URL is configured
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, logger.Logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			redisClient = client
			logger.Info("Redis client initialized successfully")
		}
	} else {
		logger.Info("Redis URL not configured, proceeding without caching")
	}

	return &Container{
		Config:      cfg,
		Logger:      logger,
		RedisClient: redisClient,
		Cipher:      cipher,
	}, nil
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// GetCipher returns the ballot cipher
func (c *Container) GetCipher() *encryption.Service {
	return c.Cipher
}

// NewTallyLocker returns the distributed lock service when Redis is
// available and an in-process locker otherwise. A single instance without
// Redis still gets per-election mutual exclusion.
func (c *Container) NewTallyLocker() service.TallyLocker {
	if c.RedisClient == nil {
		return service.NewLocalLocker()
	}
	return redis.NewLockService(c.RedisClient, c.Logger.Logger)
}
