package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/RezaEskandarii/quirrel/jobmanager"
	"github.com/RezaEskandarii/quirrel/types/config"
)

type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type flags struct {
	host        string
	port        uint
	redisURL    string
	postgresURL string
	noCron      bool
	passphrases stringList
	configPath  string
	baseURL     string
	token       string
	instance    string
	memory      bool
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("quirrel", flag.ContinueOnError)
	fs.StringVar(&f.host, "host", "", "admin API host")
	fs.UintVar(&f.port, "port", 0, "admin API port")
	fs.StringVar(&f.redisURL, "redis-url", "", "store jobs in Redis")
	fs.StringVar(&f.postgresURL, "postgres-url", "", "store jobs in Postgres")
	fs.BoolVar(&f.noCron, "no-cron", false, "do not install or use pg_cron")
	fs.Var(&f.passphrases, "passphrase", "admin API passphrase (repeatable)")
	fs.StringVar(&f.configPath, "config", "", "path to a YAML or JSON config file")
	fs.StringVar(&f.baseURL, "base-url", "", "application base URL deliveries are sent to")
	fs.StringVar(&f.token, "token", "", "token deliveries are signed with")
	fs.StringVar(&f.instance, "instance", "", "instance name owning registered jobs")
	fs.BoolVar(&f.memory, "memory", false, "keep jobs in memory")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *flags) instanceName() string {
	if f.instance != "" {
		return f.instance
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "quirrel"
}

// buildConfig loads the config file if one is given, then applies flags on top.
func buildConfig(f *flags) (*config.QuirrelConfig, error) {
	cfg, err := config.NewQuirrelConfig(f.instanceName(), config.WithMemoryStorage())
	if err != nil {
		return nil, err
	}
	if f.configPath != "" {
		if cfg, err = config.LoadFile(f.configPath, f.instanceName()); err != nil {
			return nil, err
		}
	} else if err := cfg.ApplyEnvOverrides(os.LookupEnv); err != nil {
		return nil, err
	}

	switch {
	case f.postgresURL != "":
		cfg.StorageDriver = config.Postgres
		cfg.PostgresConfig.ConnectionUrl = f.postgresURL
	case f.redisURL != "":
		cfg.StorageDriver = config.Redis
		cfg.RedisConfig.URL = f.redisURL
	case f.memory:
		cfg.StorageDriver = config.Memory
	}
	if f.host != "" {
		cfg.Host = f.host
	}
	if f.port != 0 {
		cfg.Port = f.port
	}
	if f.noCron {
		cfg.DisableCron = true
	}
	if len(f.passphrases) > 0 {
		cfg.Passphrases = f.passphrases
	}
	if f.baseURL != "" {
		cfg.ApplicationBaseURL = f.baseURL
	}
	if f.token != "" {
		cfg.Token = f.token
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := buildConfig(f)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	engine, err := jobmanager.New(ctx, cfg, true)
	if err != nil {
		return err
	}

	if f.configPath != "" && engine.Encryptor != nil {
		go func() {
			if err := config.Watch(ctx, f.configPath, cfg.Instance, engine.Encryptor, engine.Logger); err != nil {
				engine.Logger.Warn().Err(err).Msg("config hot reload disabled")
			}
		}()
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- engine.Wait() }()

	select {
	case <-ctx.Done():
	case err = <-waitErr:
		engine.Logger.Error().Err(err).Msg("background service stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	removed, shutdownErr := engine.Shutdown(shutdownCtx)
	engine.Logger.Info().Int("removed", removed).Msg("quirrel stopped")
	if err != nil {
		return err
	}
	return shutdownErr
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
