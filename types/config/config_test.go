package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "01234567890123456789012345678901"

func TestNewQuirrelConfig_Defaults(t *testing.T) {
	cfg, err := NewQuirrelConfig("worker-1", WithMemoryStorage())
	require.NoError(t, err)

	assert.Equal(t, "worker-1", cfg.Instance)
	assert.Equal(t, Memory, cfg.StorageDriver)
	assert.Equal(t, DefaultWorkerCount, cfg.WorkerCount)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.True(t, cfg.CronEnabled())
	assert.Equal(t, "0.0.0.0:9181", cfg.Addr())
}

func TestNewQuirrelConfig_CollectsOptionErrors(t *testing.T) {
	_, err := NewQuirrelConfig("worker-1",
		WithWorkerCount(0),
		WithBatchSize(-1),
		WithEncryption("short"),
	)
	require.Error(t, err)

	var verr *custom_errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 3)
	assert.ErrorIs(t, err, custom_errors.ErrInvalidSecret)
}

func TestNewQuirrelConfig_RequiresConnection(t *testing.T) {
	_, err := NewQuirrelConfig("worker-1")
	assert.ErrorContains(t, err, "postgres")

	_, err = NewQuirrelConfig("", WithMemoryStorage())
	assert.ErrorContains(t, err, "Instance")

	cfg, err := NewQuirrelConfig("worker-1", WithRedisConfig(RedisConfig{URL: "redis://localhost:6379/0"}))
	require.NoError(t, err)
	assert.Equal(t, DefaultRedisPrefix, cfg.RedisConfig.Prefix)
	assert.False(t, cfg.CronEnabled())
}

func TestNewQuirrelConfig_Options(t *testing.T) {
	cfg, err := NewQuirrelConfig("worker-1",
		WithPostgresConfig(PostgresConfig{ConnectionUrl: "postgres://localhost/q"}),
		WithoutCron(),
		WithApplicationBaseURL("http://localhost:3000/api"),
		WithToken("t"),
		WithEncryption(secret, secret),
		WithProduction(true),
		WithAdminServer("127.0.0.1", 9000, "p1", "p2"),
		WithPollInterval(50*time.Millisecond),
		WithRateLimit(5),
		WithLogLevel("DEBUG", true),
	)
	require.NoError(t, err)

	assert.False(t, cfg.CronEnabled())
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, []string{"p1", "p2"}, cfg.Passphrases)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Production)

	_, err = NewQuirrelConfig("worker-1", WithMemoryStorage(), WithApplicationBaseURL("/relative"))
	assert.Error(t, err)
}

func TestResolveBaseURL(t *testing.T) {
	assert.Equal(t, "http://host.docker.internal:3000/api", ResolveBaseURL("http://localhost:3000/api", true))
	assert.Equal(t, "http://host.docker.internal/api", ResolveBaseURL("http://127.0.0.1/api", true))
	assert.Equal(t, "http://localhost:3000", ResolveBaseURL("http://localhost:3000", false))
	assert.Equal(t, "https://example.com", ResolveBaseURL("https://example.com", true))
}

func TestParse_YAMLAndEnv(t *testing.T) {
	t.Setenv("QUIRREL_TOKEN", "from-env")
	t.Setenv("QUIRREL_ENV", "production")
	t.Setenv("QUIRREL_PASSPHRASES", "a, b")

	cfg, err := Parse([]byte(`
storage: redis
redis:
  url: redis://cache:6379/1
applicationBaseUrl: https://app.example.com
token: from-file
encryptionSecret: "`+secret+`"
pollInterval: 250ms
workerCount: 4
`), "worker-1")
	require.NoError(t, err)

	assert.Equal(t, Redis, cfg.StorageDriver)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisConfig.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, "from-env", cfg.Token)
	assert.True(t, cfg.Production)
	assert.Equal(t, []string{"a", "b"}, cfg.Passphrases)
}

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"storage":"memory","instance":"json-instance","disableCron":true}`), "fallback")
	require.NoError(t, err)
	assert.Equal(t, "json-instance", cfg.Instance)
	assert.Equal(t, Memory, cfg.StorageDriver)
	assert.True(t, cfg.DisableCron)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("storage: mongo"), "x")
	assert.Error(t, err)

	_, err = Parse([]byte("storage: memory\nencryptionSecret: short"), "x")
	assert.ErrorContains(t, err, "EncryptionSecret")

	t.Setenv("QUIRREL_PORT", "not-a-port")
	_, err = Parse([]byte("storage: memory"), "x")
	assert.ErrorContains(t, err, "QUIRREL_PORT")
}

type recordingRotator struct {
	mu     sync.Mutex
	active []string
}

func (r *recordingRotator) Rotate(active string, _ []string) error {
	r.mu.Lock()
	r.active = append(r.active, active)
	r.mu.Unlock()
	return nil
}

func (r *recordingRotator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func TestWatch_RotatesSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quirrel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: memory\n"), 0o600))

	rotator := &recordingRotator{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, "x", rotator, zerolog.Nop()) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	next := "abcdefghijabcdefghijabcdefghij12"
	require.NoError(t, os.WriteFile(path, []byte("storage: memory\nencryptionSecret: "+next+"\noldSecrets: [\""+secret+"\"]\n"), 0o600))

	assert.Eventually(t, func() bool { return rotator.count() > 0 }, 3*time.Second, 20*time.Millisecond)
	rotator.mu.Lock()
	assert.Equal(t, next, rotator.active[len(rotator.active)-1])
	rotator.mu.Unlock()

	cancel()
	assert.NoError(t, <-done)
}
