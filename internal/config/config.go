// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/JakeFAU/eures-crawler/internal/api"
	"github.com/JakeFAU/eures-crawler/internal/crawler"
	"github.com/JakeFAU/eures-crawler/internal/eures"
	"github.com/JakeFAU/eures-crawler/internal/logging"
	"github.com/JakeFAU/eures-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/eures-crawler/internal/session"
	"github.com/JakeFAU/eures-crawler/internal/storage/gcs"
	"github.com/JakeFAU/eures-crawler/internal/storage/local"
	"github.com/JakeFAU/eures-crawler/internal/storage/postgres"
	redisstore "github.com/JakeFAU/eures-crawler/internal/storage/redis"
)

// EnvPrefix namespaces environment overrides, e.g. EURES_STORAGE_BACKEND.
const EnvPrefix = "EURES"

// Backend names shared by the storage sections.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendNone     = "none"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging     logging.Config    `mapstructure:"logging"`
	Search      SearchConfig      `mapstructure:"search"`
	API         APIConfig         `mapstructure:"api"`
	Session     SessionConfig     `mapstructure:"session"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Metrics     api.Config        `mapstructure:"metrics"`
	Schedule    ScheduleConfig    `mapstructure:"schedule"`
}

// SearchConfig holds the filters sent with every search request.
type SearchConfig struct {
	BaseURL           string           `mapstructure:"base_url"`
	Keyword           string           `mapstructure:"keyword"`
	SortSearch        string           `mapstructure:"sort_search"`
	PublicationPeriod string           `mapstructure:"publication_period"`
	OccupationCodes   []string         `mapstructure:"occupation_codes"`
	ScheduleCodes     []string         `mapstructure:"schedule_codes"`
	SectorCodes       []string         `mapstructure:"sector_codes"`
	OfferingCodes     []string         `mapstructure:"offering_codes"`
	LocationCodes     []string         `mapstructure:"location_codes"`
	Languages         []eures.Language `mapstructure:"languages"`
	Lang              string           `mapstructure:"lang"`
}

// APIConfig configures the upstream HTTP client.
type APIConfig struct {
	UserAgent            string  `mapstructure:"user_agent"`
	TimeoutSeconds       int     `mapstructure:"timeout_seconds"`
	MaxRequestsPerSecond float64 `mapstructure:"max_requests_per_second"`
	MaxRetries           int     `mapstructure:"max_retries"`
	BackoffInitialMs     int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs         int     `mapstructure:"backoff_max_ms"`
}

// SessionConfig configures browser-driven credential acquisition.
type SessionConfig struct {
	Driver string `mapstructure:"driver"`
	// TargetURL defaults to the search portal page derived from search.base_url.
	TargetURL           string `mapstructure:"target_url"`
	BrowserPath         string `mapstructure:"browser_path"`
	Headless            bool   `mapstructure:"headless"`
	NoSandbox           bool   `mapstructure:"no_sandbox"`
	SettleTimeoutMs     int    `mapstructure:"settle_timeout_ms"`
	PollIntervalMs      int    `mapstructure:"poll_interval_ms"`
	NavigationTimeoutMs int    `mapstructure:"navigation_timeout_ms"`
	// Cookie and XSRFToken seed the static driver.
	Cookie    string `mapstructure:"cookie"`
	XSRFToken string `mapstructure:"xsrf_token"`
}

// CredentialsConfig selects where the session credential is persisted.
type CredentialsConfig struct {
	Backend string                 `mapstructure:"backend"`
	File    local.CredentialConfig `mapstructure:"file"`
	Redis   redisstore.Config      `mapstructure:"redis"`
}

// StorageConfig selects the listing repository.
type StorageConfig struct {
	Backend  string          `mapstructure:"backend"`
	SQLite   SQLiteConfig    `mapstructure:"sqlite"`
	Postgres postgres.Config `mapstructure:"postgres"`
}

// SQLiteConfig locates the sqlite database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// CrawlerConfig governs the ingestion run.
type CrawlerConfig struct {
	PageDelayMs int `mapstructure:"page_delay_ms"`
}

// ArchiveConfig controls raw search page archiving.
type ArchiveConfig struct {
	Backend string       `mapstructure:"backend"`
	Prefix  string       `mapstructure:"prefix"`
	Local   local.Config `mapstructure:"local"`
	GCS     gcs.Config   `mapstructure:"gcs"`
}

// PubSubConfig holds the run-completed notification target.
type PubSubConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Topic   string        `mapstructure:"topic"`
	Client  pubsub.Config `mapstructure:",squash"`
}

// ScheduleConfig drives periodic crawls. An empty Cron runs once.
type ScheduleConfig struct {
	Cron       string `mapstructure:"cron"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// Load builds a Config from a .env file, an optional config file and the environment.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadDotEnv exports variables from path into the process environment. A missing file is not an error
// and variables that are already set win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// setDefaults registers every key; AutomaticEnv only overrides keys viper already knows.
func setDefaults(v *viper.Viper) {
	q := eures.DefaultQuery()
	languages := make([]map[string]string, 0, len(q.Languages))
	for _, l := range q.Languages {
		languages = append(languages, map[string]string{"iso_code": l.ISOCode, "level": l.Level})
	}

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	v.SetDefault("search.base_url", q.BaseURL)
	v.SetDefault("search.keyword", q.Keyword)
	v.SetDefault("search.sort_search", q.SortSearch)
	v.SetDefault("search.publication_period", q.PublicationPeriod)
	v.SetDefault("search.occupation_codes", q.OccupationCodes)
	v.SetDefault("search.schedule_codes", q.ScheduleCodes)
	v.SetDefault("search.sector_codes", q.SectorCodes)
	v.SetDefault("search.offering_codes", q.OfferingCodes)
	v.SetDefault("search.location_codes", q.LocationCodes)
	v.SetDefault("search.languages", languages)
	v.SetDefault("search.lang", q.Lang)

	v.SetDefault("api.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("api.timeout_seconds", 30)
	v.SetDefault("api.max_requests_per_second", 0)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.backoff_initial_ms", 500)
	v.SetDefault("api.backoff_max_ms", 10000)

	v.SetDefault("session.driver", session.DriverChromedp)
	v.SetDefault("session.headless", true)
	v.SetDefault("session.no_sandbox", false)
	v.SetDefault("session.settle_timeout_ms", 7000)
	v.SetDefault("session.poll_interval_ms", 250)
	v.SetDefault("session.navigation_timeout_ms", 45000)
	v.SetDefault("session.target_url", "")
	v.SetDefault("session.browser_path", "")
	v.SetDefault("session.cookie", "")
	v.SetDefault("session.xsrf_token", "")

	v.SetDefault("credentials.backend", BackendFile)
	v.SetDefault("credentials.file.cookie_file", "cookiefile.json")
	v.SetDefault("credentials.file.xsrf_file", "xsrf_token.txt")
	v.SetDefault("credentials.redis.addr", "localhost:6379")
	v.SetDefault("credentials.redis.password", "")
	v.SetDefault("credentials.redis.db", 0)
	v.SetDefault("credentials.redis.key_prefix", "eures:credential:")

	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.sqlite.path", "jobs_data.db")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table", "jobs")
	v.SetDefault("storage.postgres.max_conns", 0)
	v.SetDefault("storage.postgres.min_conns", 0)
	v.SetDefault("storage.postgres.max_conn_lifetime", "0s")

	v.SetDefault("crawler.page_delay_ms", 1000)

	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("archive.local.base_dir", "archive")
	v.SetDefault("archive.gcs.bucket", "")
	v.SetDefault("archive.gcs.endpoint", "")

	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.topic", "eures-runs")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.endpoint", "")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.api_key", "")
	v.SetDefault("metrics.request_timeout", "30s")
	v.SetDefault("metrics.shutdown_timeout", "10s")

	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.run_on_start", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Search.BaseURL) == "" {
		return fmt.Errorf("search.base_url is required")
	}
	if strings.TrimSpace(c.Search.Lang) == "" {
		return fmt.Errorf("search.lang is required")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.API.MaxRetries <= 0 {
		return fmt.Errorf("api.max_retries must be > 0")
	}
	if c.API.BackoffInitialMs <= 0 {
		return fmt.Errorf("api.backoff_initial_ms must be > 0")
	}
	if c.API.BackoffMaxMs < c.API.BackoffInitialMs {
		return fmt.Errorf("api.backoff_max_ms must be >= api.backoff_initial_ms")
	}
	if c.API.MaxRequestsPerSecond < 0 {
		return fmt.Errorf("api.max_requests_per_second must be >= 0")
	}
	if c.Crawler.PageDelayMs < 0 {
		return fmt.Errorf("crawler.page_delay_ms must be >= 0")
	}
	if c.Session.SettleTimeoutMs <= 0 {
		return fmt.Errorf("session.settle_timeout_ms must be > 0")
	}
	if c.Session.PollIntervalMs <= 0 {
		return fmt.Errorf("session.poll_interval_ms must be > 0")
	}

	switch c.Session.Driver {
	case session.DriverChromedp, session.DriverRod:
	case session.DriverStatic:
		if !c.StaticCredential().Valid() {
			return fmt.Errorf("session.cookie and session.xsrf_token must be set for the static driver")
		}
	default:
		return fmt.Errorf("session.driver %q is not one of chromedp, rod, static", c.Session.Driver)
	}

	switch c.Credentials.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Credentials.File.CookieFile == "" || c.Credentials.File.XSRFFile == "" {
			return fmt.Errorf("credentials.file.cookie_file and credentials.file.xsrf_file are required")
		}
	case BackendRedis:
		if c.Credentials.Redis.Addr == "" {
			return fmt.Errorf("credentials.redis.addr is required")
		}
	default:
		return fmt.Errorf("credentials.backend %q is not one of file, redis, memory", c.Credentials.Backend)
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of sqlite, postgres, memory", c.Storage.Backend)
	}

	switch c.Archive.Backend {
	case "", BackendNone, BackendMemory:
	case BackendLocal:
		if c.Archive.Local.BaseDir == "" {
			return fmt.Errorf("archive.local.base_dir is required")
		}
	case BackendGCS:
		if c.Archive.GCS.Bucket == "" {
			return fmt.Errorf("archive.gcs.bucket is required")
		}
	default:
		return fmt.Errorf("archive.backend %q is not one of none, memory, local, gcs", c.Archive.Backend)
	}

	if c.PubSub.Enabled && (c.PubSub.Client.ProjectID == "" || c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic are required when pubsub is enabled")
	}

	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron: %w", err)
		}
	}
	return nil
}

// Query returns the immutable search filters.
func (c Config) Query() eures.Query {
	s := c.Search
	return eures.Query{
		BaseURL:           strings.TrimRight(s.BaseURL, "/"),
		Keyword:           s.Keyword,
		SortSearch:        s.SortSearch,
		PublicationPeriod: s.PublicationPeriod,
		OccupationCodes:   s.OccupationCodes,
		ScheduleCodes:     s.ScheduleCodes,
		SectorCodes:       s.SectorCodes,
		OfferingCodes:     s.OfferingCodes,
		LocationCodes:     s.LocationCodes,
		Languages:         s.Languages,
		Lang:              s.Lang,
	}
}

// ClientConfig converts the api section into client options.
func (c Config) ClientConfig() eures.Config {
	return eures.Config{
		UserAgent:            c.API.UserAgent,
		Timeout:              time.Duration(c.API.TimeoutSeconds) * time.Second,
		MaxRequestsPerSecond: c.API.MaxRequestsPerSecond,
		Retry: crawler.NewRetryPolicy(
			c.API.MaxRetries,
			time.Duration(c.API.BackoffInitialMs)*time.Millisecond,
			time.Duration(c.API.BackoffMaxMs)*time.Millisecond,
		),
	}
}

// SessionConfig converts the session section into acquirer options. The browser presents the
// same User-Agent as the API client.
func (c Config) SessionConfig() session.Config {
	target := c.Session.TargetURL
	if target == "" {
		target = c.Query().PortalURL()
	}
	return session.Config{
		TargetURL:         target,
		UserAgent:         c.API.UserAgent,
		BrowserPath:       c.Session.BrowserPath,
		Headless:          c.Session.Headless,
		NoSandbox:         c.Session.NoSandbox,
		SettleTimeout:     time.Duration(c.Session.SettleTimeoutMs) * time.Millisecond,
		PollInterval:      time.Duration(c.Session.PollIntervalMs) * time.Millisecond,
		NavigationTimeout: time.Duration(c.Session.NavigationTimeoutMs) * time.Millisecond,
	}
}

// StaticCredential returns the credential configured for the static driver.
func (c Config) StaticCredential() crawler.Credential {
	cookie := strings.TrimSpace(c.Session.Cookie)
	if cookie != "" && !strings.Contains(cookie, "=") {
		cookie = "EURES_JVSE_SESSIONID=" + cookie
	}
	return crawler.Credential{SessionCookie: cookie, XSRFToken: strings.TrimSpace(c.Session.XSRFToken)}
}

// PipelineConfig converts the crawler, archive and pubsub sections into pipeline options.
func (c Config) PipelineConfig() crawler.PipelineConfig {
	cfg := crawler.PipelineConfig{
		PageDelay:     time.Duration(c.Crawler.PageDelayMs) * time.Millisecond,
		ArchivePrefix: c.Archive.Prefix,
	}
	if c.PubSub.Enabled {
		cfg.Topic = c.PubSub.Topic
	}
	return cfg
}
