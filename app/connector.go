package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Connector opens the shared store connections lazily. Concurrent first callers share
// one dial; later callers get the cached handle.
type Connector struct {
	postgresURL string
	redisURL    string

	group singleflight.Group
	mu    sync.Mutex
	db    *sql.DB
	redis goredis.UniversalClient
}

func NewConnector(postgresURL, redisURL string) *Connector {
	return &Connector{postgresURL: postgresURL, redisURL: redisURL}
}

// Postgres returns the shared pool, opening and pinging it on first use.
func (c *Connector) Postgres(ctx context.Context) (*sql.DB, error) {
	c.mu.Lock()
	if c.db != nil {
		db := c.db
		c.mu.Unlock()
		return db, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("postgres", func() (any, error) {
		db, err := sql.Open("postgres", c.postgresURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		c.mu.Lock()
		c.db = db
		c.mu.Unlock()
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sql.DB), nil
}

// Redis returns the shared client, dialing and pinging it on first use.
func (c *Connector) Redis(ctx context.Context) (goredis.UniversalClient, error) {
	c.mu.Lock()
	if c.redis != nil {
		client := c.redis
		c.mu.Unlock()
		return client, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("redis", func() (any, error) {
		opts, err := goredis.ParseURL(c.redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		c.mu.Lock()
		c.redis = client
		c.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(goredis.UniversalClient), nil
}

func (c *Connector) setPostgres(db *sql.DB) {
	c.mu.Lock()
	c.db = db
	c.mu.Unlock()
}

func (c *Connector) setRedis(client goredis.UniversalClient) {
	c.mu.Lock()
	c.redis = client
	c.mu.Unlock()
}

// Close releases whatever was opened.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.db != nil {
		errs = append(errs, c.db.Close())
		c.db = nil
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
		c.redis = nil
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
