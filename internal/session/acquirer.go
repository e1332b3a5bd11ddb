package session

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

// Driver names accepted by New.
const (
	DriverChromedp = "chromedp"
	DriverRod      = "rod"
	DriverStatic   = "static"
)

const (
	defaultSettle     = 7 * time.Second
	defaultPoll       = 250 * time.Millisecond
	defaultNavTimeout = 45 * time.Second
)

// Config controls browser-driven acquisition.
type Config struct {
	// TargetURL is the portal page whose responses issue the session cookies.
	TargetURL string
	UserAgent string
	// BrowserPath overrides the browser binary; empty means autodetect.
	BrowserPath string
	Headless    bool
	NoSandbox   bool
	// SettleTimeout is how long the page may run before the log is judged.
	SettleTimeout time.Duration
	// PollInterval is how often the log is checked for an early exit.
	PollInterval      time.Duration
	NavigationTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = defaultSettle
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPoll
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavTimeout
	}
	return c
}

// New returns the acquirer for driver. The static driver serves the fallback credential.
func New(driver string, cfg Config, fallback crawler.Credential, logger *zap.Logger) (crawler.SessionAcquirer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverChromedp:
		return NewChromedp(cfg, logger), nil
	case DriverRod:
		return NewRod(cfg, logger), nil
	case DriverStatic:
		return NewStatic(fallback), nil
	default:
		return nil, fmt.Errorf("unknown session driver %q", driver)
	}
}
