package app

import (
	"database/sql"
	"net/http"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	// Optional: inject custom connections instead of creating them from config
	db         *sql.DB
	redis      goredis.UniversalClient
	logger     *zerolog.Logger
	httpClient *http.Client
}

// WithDB injects a custom database connection. Useful for testing.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects a custom Redis client. Useful for testing.
func WithRedis(redis goredis.UniversalClient) ContainerOption {
	return func(c *containerConfig) {
		c.redis = redis
	}
}

func WithLogger(logger zerolog.Logger) ContainerOption {
	return func(c *containerConfig) {
		c.logger = &logger
	}
}

// WithHTTPClient sets the client deliveries are sent with.
func WithHTTPClient(client *http.Client) ContainerOption {
	return func(c *containerConfig) {
		c.httpClient = client
	}
}
