package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/eures-crawler/internal/eures"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, eures.DefaultQuery(), cfg.Query())
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "jobs_data.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, BackendFile, cfg.Credentials.Backend)
	assert.Equal(t, "cookiefile.json", cfg.Credentials.File.CookieFile)
	assert.Equal(t, "xsrf_token.txt", cfg.Credentials.File.XSRFFile)
	assert.Equal(t, "chromedp", cfg.Session.Driver)

	sess := cfg.SessionConfig()
	assert.Equal(t, 7*time.Second, sess.SettleTimeout)
	assert.Equal(t, 250*time.Millisecond, sess.PollInterval)
	assert.Equal(t, eures.DefaultQuery().PortalURL(), sess.TargetURL)
	assert.Equal(t, cfg.API.UserAgent, sess.UserAgent)

	client := cfg.ClientConfig()
	assert.Equal(t, 30*time.Second, client.Timeout)
	require.NotNil(t, client.Retry)

	pipeline := cfg.PipelineConfig()
	assert.Equal(t, time.Second, pipeline.PageDelay)
	assert.Empty(t, pipeline.Topic, "publishing is off by default")
	assert.Equal(t, 30*time.Second, cfg.Metrics.RequestTimeout)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
logging:
  development: true
  level: debug
search:
  base_url: https://eures.example/
  keyword: platform lead
  location_codes: [de, at]
  languages:
    - iso_code: de
      level: B2
api:
  timeout_seconds: 10
  max_requests_per_second: 2.5
session:
  driver: rod
  settle_timeout_ms: 3000
credentials:
  backend: redis
  redis:
    addr: redis:6379
    db: 2
storage:
  backend: postgres
  postgres:
    dsn: postgres://eures@db/eures
    max_conns: 4
crawler:
  page_delay_ms: 250
archive:
  backend: gcs
  gcs:
    bucket: eures-raw
pubsub:
  enabled: true
  project_id: eures-prod
  topic: runs
metrics:
  addr: ":9090"
schedule:
  cron: "@hourly"
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	q := cfg.Query()
	assert.Equal(t, "https://eures.example", q.BaseURL)
	assert.Equal(t, "platform lead", q.Keyword)
	assert.Equal(t, []string{"de", "at"}, q.LocationCodes)
	assert.Equal(t, []eures.Language{{ISOCode: "de", Level: "B2"}}, q.Languages)
	assert.Equal(t, eures.DefaultQuery().OccupationCodes, q.OccupationCodes, "unset filters keep defaults")

	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "rod", cfg.Session.Driver)
	assert.Equal(t, 3*time.Second, cfg.SessionConfig().SettleTimeout)
	assert.Equal(t, 2.5, cfg.ClientConfig().MaxRequestsPerSecond)
	assert.Equal(t, "redis:6379", cfg.Credentials.Redis.Addr)
	assert.Equal(t, 2, cfg.Credentials.Redis.DB)
	assert.Equal(t, "postgres://eures@db/eures", cfg.Storage.Postgres.DSN)
	assert.EqualValues(t, 4, cfg.Storage.Postgres.MaxConns)
	assert.Equal(t, "eures-raw", cfg.Archive.GCS.Bucket)
	assert.Equal(t, "eures-prod", cfg.PubSub.Client.ProjectID)
	assert.Equal(t, "runs", cfg.PipelineConfig().Topic)
	assert.Equal(t, 250*time.Millisecond, cfg.PipelineConfig().PageDelay)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, "@hourly", cfg.Schedule.Cron)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EURES_STORAGE_BACKEND", "memory")
	t.Setenv("EURES_SEARCH_KEYWORD", "staff engineer")
	t.Setenv("EURES_SESSION_DRIVER", "static")
	t.Setenv("EURES_SESSION_COOKIE", "abc123")
	t.Setenv("EURES_SESSION_XSRF_TOKEN", "xyz789")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "staff engineer", cfg.Query().Keyword)

	cred := cfg.StaticCredential()
	assert.Equal(t, "EURES_JVSE_SESSIONID=abc123", cred.SessionCookie)
	assert.Equal(t, "xyz789", cred.XSRFToken)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EURES_CRAWLER_PAGE_DELAY_MS=50\n"), 0o600))
	t.Setenv("EURES_CRAWLER_PAGE_DELAY_MS", "")
	require.NoError(t, os.Unsetenv("EURES_CRAWLER_PAGE_DELAY_MS"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.PipelineConfig().PageDelay)
}

func TestLoadDotEnvMissingFileIsIgnored(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConfigValidateErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "base url", mutate: func(c *Config) { c.Search.BaseURL = " " }, want: "search.base_url"},
		{name: "timeout", mutate: func(c *Config) { c.API.TimeoutSeconds = 0 }, want: "api.timeout_seconds"},
		{name: "retries", mutate: func(c *Config) { c.API.MaxRetries = 0 }, want: "api.max_retries"},
		{name: "negative backoff", mutate: func(c *Config) { c.API.BackoffInitialMs = -100 }, want: "api.backoff_initial_ms"},
		{name: "zero backoff", mutate: func(c *Config) { c.API.BackoffInitialMs = 0 }, want: "api.backoff_initial_ms"},
		{name: "backoff ceiling", mutate: func(c *Config) { c.API.BackoffMaxMs = -1 }, want: "api.backoff_max_ms"},
		{name: "negative rate", mutate: func(c *Config) { c.API.MaxRequestsPerSecond = -1 }, want: "api.max_requests_per_second"},
		{name: "negative delay", mutate: func(c *Config) { c.Crawler.PageDelayMs = -1 }, want: "crawler.page_delay_ms"},
		{name: "settle", mutate: func(c *Config) { c.Session.SettleTimeoutMs = 0 }, want: "session.settle_timeout_ms"},
		{name: "driver", mutate: func(c *Config) { c.Session.Driver = "selenium" }, want: "session.driver"},
		{name: "static without tokens", mutate: func(c *Config) { c.Session.Driver = "static" }, want: "session.cookie"},
		{name: "credentials backend", mutate: func(c *Config) { c.Credentials.Backend = "vault" }, want: "credentials.backend"},
		{name: "redis addr", mutate: func(c *Config) {
			c.Credentials.Backend = BackendRedis
			c.Credentials.Redis.Addr = ""
		}, want: "credentials.redis.addr"},
		{name: "storage backend", mutate: func(c *Config) { c.Storage.Backend = "mongo" }, want: "storage.backend"},
		{name: "postgres dsn", mutate: func(c *Config) { c.Storage.Backend = BackendPostgres }, want: "storage.postgres.dsn"},
		{name: "gcs bucket", mutate: func(c *Config) { c.Archive.Backend = BackendGCS }, want: "archive.gcs.bucket"},
		{name: "archive backend", mutate: func(c *Config) { c.Archive.Backend = "s3" }, want: "archive.backend"},
		{name: "pubsub project", mutate: func(c *Config) { c.PubSub.Enabled = true }, want: "pubsub.project_id"},
		{name: "cron", mutate: func(c *Config) { c.Schedule.Cron = "every tuesday" }, want: "schedule.cron"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "got %v", err)
		})
	}
}
