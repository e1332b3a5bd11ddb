package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

// Rod acquires credentials with a go-rod controlled browser.
type Rod struct {
	cfg    Config
	logger *zap.Logger
}

// NewRod builds a rod-backed acquirer.
func NewRod(cfg Config, logger *zap.Logger) *Rod {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rod{cfg: cfg.withDefaults(), logger: logger.Named("session.rod")}
}

// Acquire launches a fresh browser, visits the portal and reads the cookies it is issued.
// The browser process and its profile directory are always removed before returning.
func (r *Rod) Acquire(ctx context.Context) (crawler.Credential, error) {
	l := launcher.New().
		Context(ctx).
		Headless(r.cfg.Headless).
		NoSandbox(r.cfg.NoSandbox).
		Set("disable-gpu").
		Set("disable-dev-shm-usage")
	if r.cfg.BrowserPath != "" {
		l = l.Bin(r.cfg.BrowserPath)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return crawler.Credential{}, &crawler.AcquisitionError{Cause: fmt.Errorf("rod launch: %w", err)}
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return crawler.Credential{}, &crawler.AcquisitionError{Cause: fmt.Errorf("rod connect: %w", err)}
	}
	defer func() {
		if err := browser.Close(); err != nil {
			r.logger.Debug("close browser", zap.Error(err))
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return crawler.Credential{}, &crawler.AcquisitionError{Cause: fmt.Errorf("rod open page: %w", err)}
	}
	if r.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.cfg.UserAgent}); err != nil {
			return crawler.Credential{}, &crawler.AcquisitionError{Cause: fmt.Errorf("rod set user-agent: %w", err)}
		}
	}

	log := &networkLog{}
	wait := page.EachEvent(func(e *proto.NetworkResponseReceivedExtraInfo) {
		headers := make(map[string]string, len(e.Headers))
		for key, value := range e.Headers {
			headers[key] = value.Str()
		}
		log.add(LogEntry{RequestID: string(e.RequestID), Headers: headers})
	})
	go wait()

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return crawler.Credential{}, &crawler.AcquisitionError{Cause: fmt.Errorf("rod enable network: %w", err)}
	}

	start := time.Now()
	if err := page.Timeout(r.cfg.NavigationTimeout).Navigate(r.cfg.TargetURL); err != nil {
		return crawler.Credential{}, &crawler.AcquisitionError{Cause: fmt.Errorf("rod navigate: %w", err)}
	}

	cred, err := log.settle(ctx, r.cfg.SettleTimeout, r.cfg.PollInterval)
	r.logger.Debug("network log settled",
		zap.Int("entries", log.len()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("complete", err == nil),
	)
	if err != nil {
		return crawler.Credential{}, err
	}
	return cred, nil
}
