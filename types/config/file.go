package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"
)

// LoadFile reads a YAML (or JSON) configuration, applies QUIRREL_* environment
// overrides and validates the result. instance is used when the file names none.
func LoadFile(path, instance string) (*QuirrelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, instance)
}

// Parse decodes raw configuration on top of the defaults.
func Parse(data []byte, instance string) (*QuirrelConfig, error) {
	cfg := defaults(instance)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.ApplyEnvOverrides(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides overrides fields with QUIRREL_* variables found by lookup.
func (c *QuirrelConfig) ApplyEnvOverrides(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("QUIRREL_INSTANCE", &c.Instance)
	str("QUIRREL_BASE_URL", &c.ApplicationBaseURL)
	str("QUIRREL_TOKEN", &c.Token)
	str("QUIRREL_ENCRYPTION_SECRET", &c.EncryptionSecret)
	list("QUIRREL_OLD_SECRETS", &c.OldSecrets)
	list("QUIRREL_PASSPHRASES", &c.Passphrases)
	str("QUIRREL_HOST", &c.Host)
	str("QUIRREL_LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup("QUIRREL_DATABASE_URL"); ok && v != "" {
		c.StorageDriver = Postgres
		c.PostgresConfig.ConnectionUrl = v
	}
	if v, ok := lookup("QUIRREL_REDIS_URL"); ok && v != "" {
		c.StorageDriver = Redis
		c.RedisConfig.URL = v
	}
	if v, ok := lookup("QUIRREL_ENV"); ok && v != "" {
		c.Production = v == "production"
	}
	if v, ok := lookup("QUIRREL_DISABLE_CRON"); ok && v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing QUIRREL_DISABLE_CRON: %w", err)
		}
		c.DisableCron = disabled
	}
	if v, ok := lookup("QUIRREL_PORT"); ok && v != "" {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("parsing QUIRREL_PORT: %w", err)
		}
		c.Port = uint(port)
	}
	if v, ok := lookup("QUIRREL_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing QUIRREL_WORKERS: %w", err)
		}
		c.WorkerCount = n
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
