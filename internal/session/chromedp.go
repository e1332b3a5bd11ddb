package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

// Chromedp acquires credentials with a chromedp-controlled Chrome.
type Chromedp struct {
	cfg    Config
	logger *zap.Logger
}

// NewChromedp builds a chromedp-backed acquirer.
func NewChromedp(cfg Config, logger *zap.Logger) *Chromedp {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chromedp{cfg: cfg.withDefaults(), logger: logger.Named("session.chromedp")}
}

// Acquire launches a fresh browser, visits the portal and reads the cookies it is issued.
// The browser is always torn down before returning.
func (c *Chromedp) Acquire(ctx context.Context) (crawler.Credential, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	log := &networkLog{}
	chromedp.ListenTarget(taskCtx, func(ev any) {
		if e, ok := ev.(*network.EventResponseReceivedExtraInfo); ok {
			log.add(LogEntry{RequestID: string(e.RequestID), Headers: flattenHeaders(e.Headers)})
		}
	})

	start := time.Now()
	// The first Run allocates the browser and binds it to taskCtx; only navigation is bounded.
	if err := chromedp.Run(taskCtx, c.networkSetupAction()); err != nil {
		return crawler.Credential{}, &crawler.AcquisitionError{Cause: fmt.Errorf("chromedp start: %w", err)}
	}
	navCtx, navCancel := context.WithTimeout(taskCtx, c.cfg.NavigationTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(c.cfg.TargetURL))
	navCancel()
	if err != nil {
		return crawler.Credential{}, &crawler.AcquisitionError{Cause: fmt.Errorf("chromedp navigate: %w", err)}
	}

	cred, err := log.settle(taskCtx, c.cfg.SettleTimeout, c.cfg.PollInterval)
	c.logger.Debug("network log settled",
		zap.Int("entries", log.len()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("complete", err == nil),
	)
	if err != nil {
		return crawler.Credential{}, err
	}
	return cred, nil
}

func (c *Chromedp) allocatorOptions() []chromedp.ExecAllocatorOption {
	var headless any = false
	if c.cfg.Headless {
		headless = "new"
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if c.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if c.cfg.BrowserPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.BrowserPath))
	}
	if c.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.cfg.UserAgent))
	}
	return opts
}

func (c *Chromedp) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func flattenHeaders(headers network.Headers) map[string]string {
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		switch v := value.(type) {
		case string:
			out[key] = v
		case []string:
			out[key] = strings.Join(v, "\n")
		case []interface{}:
			parts := make([]string, 0, len(v))
			for _, entry := range v {
				parts = append(parts, fmt.Sprint(entry))
			}
			out[key] = strings.Join(parts, "\n")
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out
}
