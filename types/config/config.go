package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/go-playground/validator/v10"
)

type QuirrelConfig struct {
	// Instance owns every job this process registers. Shutdown removes them.
	Instance string `yaml:"instance" validate:"required,max=64"`

	// Production enables signature verification on inbound deliveries.
	Production         bool   `yaml:"production"`
	ApplicationBaseURL string `yaml:"applicationBaseUrl" validate:"omitempty,url"`
	Token              string `yaml:"token"`

	EncryptionSecret string   `yaml:"encryptionSecret" validate:"omitempty,len=32"`
	OldSecrets       []string `yaml:"oldSecrets" validate:"dive,len=32"`

	StorageDriver  StorageDriver  `yaml:"storage" validate:"min=1,max=3"`
	PostgresConfig PostgresConfig `yaml:"postgres"`
	RedisConfig    RedisConfig    `yaml:"redis"`
	DisableCron    bool           `yaml:"disableCron"`

	// Admin API
	Host        string   `yaml:"host"`
	Port        uint     `yaml:"port" validate:"max=65535"`
	Passphrases []string `yaml:"passphrases" validate:"dive,required"`

	WorkerCount   int           `yaml:"workerCount" validate:"min=1"`
	BatchSize     int           `yaml:"batchSize" validate:"min=1"`
	PollInterval  time.Duration `yaml:"pollInterval" validate:"min=1ms"`
	RatePerSecond float64       `yaml:"ratePerSecond" validate:"gte=0"`

	LogLevel   string `yaml:"logLevel" validate:"omitempty,oneof=trace debug info warn error"`
	LogConsole bool   `yaml:"logConsole"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	ConnectionUrl string `yaml:"url"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// ContainerOption type for functional options pattern
type ContainerOption func(*QuirrelConfig) error

var validate = validator.New()

func defaults(instance string) *QuirrelConfig {
	return &QuirrelConfig{
		Instance:      instance,
		StorageDriver: DefaultStorageDriver,
		Host:          DefaultHost,
		Port:          DefaultPort,
		WorkerCount:   DefaultWorkerCount,
		BatchSize:     DefaultBatchSize,
		PollInterval:  DefaultPollInterval,
		LogLevel:      DefaultLogLevel,
		RedisConfig:   RedisConfig{Prefix: DefaultRedisPrefix},
	}
}

// NewQuirrelConfig creates a configuration with default values. Only the instance
// name is required; every failed option is reported in one ValidationError.
func NewQuirrelConfig(instance string, opts ...ContainerOption) (*QuirrelConfig, error) {
	cfg := defaults(instance)
	validationErrs := &custom_errors.ValidationError{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			validationErrs.Add(err)
		}
	}
	if validationErrs.HasError() {
		return nil, validationErrs
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross field rules.
func (c *QuirrelConfig) Validate() error {
	validationErrs := &custom_errors.ValidationError{}
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				validationErrs.Add(fmt.Errorf("%s: failed on '%s'", fe.Namespace(), fe.Tag()))
			}
		} else {
			validationErrs.Add(err)
		}
	}
	switch c.StorageDriver {
	case Postgres:
		if c.PostgresConfig.ConnectionUrl == "" {
			validationErrs.Add(errors.New("postgres: connection URL is required"))
		}
	case Redis:
		if c.RedisConfig.URL == "" {
			validationErrs.Add(errors.New("redis: URL is required"))
		}
	}
	if len(c.OldSecrets) > 0 && c.EncryptionSecret == "" {
		validationErrs.Add(errors.New("oldSecrets need an active encryptionSecret"))
	}
	if validationErrs.HasError() {
		return validationErrs
	}
	return nil
}

// CronEnabled reports whether recurring jobs can be registered.
func (c *QuirrelConfig) CronEnabled() bool {
	return !c.DisableCron && c.StorageDriver.SupportsCron()
}

// Addr is the listen address of the admin API.
func (c *QuirrelConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// BaseURL is the application base URL deliveries are sent to, with localhost
// rewritten when running inside a container.
func (c *QuirrelConfig) BaseURL() string {
	return ResolveBaseURL(c.ApplicationBaseURL, InContainer())
}

func WithPostgresConfig(pg PostgresConfig) ContainerOption {
	return func(c *QuirrelConfig) error {
		if pg.ConnectionUrl == "" {
			return errors.New("postgres client: connection URL is required")
		}
		c.StorageDriver = Postgres
		c.PostgresConfig = pg
		return nil
	}
}

func WithRedisConfig(rc RedisConfig) ContainerOption {
	return func(c *QuirrelConfig) error {
		if rc.URL == "" {
			return errors.New("redis client: URL is required")
		}
		if rc.Prefix == "" {
			rc.Prefix = DefaultRedisPrefix
		}
		c.StorageDriver = Redis
		c.RedisConfig = rc
		return nil
	}
}

// WithMemoryStorage keeps jobs in process memory.
func WithMemoryStorage() ContainerOption {
	return func(c *QuirrelConfig) error {
		c.StorageDriver = Memory
		return nil
	}
}

func WithoutCron() ContainerOption {
	return func(c *QuirrelConfig) error {
		c.DisableCron = true
		return nil
	}
}

func WithApplicationBaseURL(baseURL string) ContainerOption {
	return func(c *QuirrelConfig) error {
		u, err := url.Parse(baseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("application base URL %q must be absolute", baseURL)
		}
		c.ApplicationBaseURL = baseURL
		return nil
	}
}

func WithToken(token string) ContainerOption {
	return func(c *QuirrelConfig) error {
		c.Token = token
		return nil
	}
}

// WithEncryption sets the active secret and the retired secrets still accepted on
// decryption, newest first.
func WithEncryption(secret string, oldSecrets ...string) ContainerOption {
	return func(c *QuirrelConfig) error {
		if len(secret) != 32 {
			return custom_errors.ErrInvalidSecret
		}
		for _, old := range oldSecrets {
			if len(old) != 32 {
				return fmt.Errorf("old secret: %w", custom_errors.ErrInvalidSecret)
			}
		}
		c.EncryptionSecret = secret
		c.OldSecrets = oldSecrets
		return nil
	}
}

func WithProduction(production bool) ContainerOption {
	return func(c *QuirrelConfig) error {
		c.Production = production
		return nil
	}
}

func WithAdminServer(host string, port uint, passphrases ...string) ContainerOption {
	return func(c *QuirrelConfig) error {
		if port == 0 || port > 65535 {
			return errors.New("admin server: port must be between 1 and 65535")
		}
		if host != "" {
			c.Host = host
		}
		c.Port = port
		c.Passphrases = passphrases
		return nil
	}
}

func WithWorkerCount(n int) ContainerOption {
	return func(c *QuirrelConfig) error {
		if n < 1 {
			return errors.New("worker count must be positive")
		}
		c.WorkerCount = n
		return nil
	}
}

func WithBatchSize(batchSize int) ContainerOption {
	return func(c *QuirrelConfig) error {
		if batchSize < 1 {
			return errors.New("batch size must be positive")
		}
		c.BatchSize = batchSize
		return nil
	}
}

func WithPollInterval(d time.Duration) ContainerOption {
	return func(c *QuirrelConfig) error {
		if d < time.Millisecond {
			return errors.New("poll interval must be at least 1ms")
		}
		c.PollInterval = d
		return nil
	}
}

// WithRateLimit caps outbound deliveries per second. Zero removes the cap.
func WithRateLimit(perSecond float64) ContainerOption {
	return func(c *QuirrelConfig) error {
		if perSecond < 0 {
			return errors.New("rate limit must not be negative")
		}
		c.RatePerSecond = perSecond
		return nil
	}
}

func WithLogLevel(level string, console bool) ContainerOption {
	return func(c *QuirrelConfig) error {
		c.LogLevel = strings.ToLower(level)
		c.LogConsole = console
		return nil
	}
}

// InContainer reports whether the process runs inside a Docker style container.
func InContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return os.Getenv("QUIRREL_IN_CONTAINER") == "true"
}

// ResolveBaseURL rewrites a localhost base URL to host.docker.internal when
// inContainer, so deliveries reach the application on the host.
func ResolveBaseURL(baseURL string, inContainer bool) string {
	if !inContainer || baseURL == "" {
		return baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" {
		return baseURL
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort("host.docker.internal", port)
	} else {
		u.Host = "host.docker.internal"
	}
	return u.String()
}
